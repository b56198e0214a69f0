// Package decoder recovers renderable HTML from a raw digest email payload.
package decoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

// qpMarkers are escape sequences that betray quoted-printable HTML.
var qpMarkers = []string{"=3D", "=E2="}

// Decoder turns RawPayloads into HTML text. The zero value is usable.
type Decoder struct {
	logger *zap.Logger
}

// New builds a Decoder.
func New(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode returns the best-effort HTML/text content of raw. Decoding problems
// fall back to the undecoded text; only an empty result is an error.
func (d *Decoder) Decode(raw digest.RawPayload) (string, error) {
	logger := d.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	text := string(raw.Data)
	if strings.TrimSpace(text) == "" {
		return "", digest.NewError(digest.KindValidation, "decode", digest.ErrDecode)
	}

	out := text
	if html, ok := decodeMessage(raw.Data); ok {
		logger.Debug("decoded html part from mime message", zap.Int("bytes", len(html)))
		out = html
	} else if decoded, ok := decodeDeclared(raw); ok {
		out = decoded
	} else if html, ok := htmlFromMarker(text); ok {
		if recovered, ok := recoverQuotedPrintable(html); ok {
			logger.Debug("recovered quoted-printable html", zap.Int("bytes", len(recovered)))
			html = recovered
		}
		out = html
	}

	if strings.TrimSpace(out) == "" {
		return "", digest.NewError(digest.KindValidation, "decode", digest.ErrDecode)
	}
	return out, nil
}

func decodeMessage(data []byte) (string, bool) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	ctype := msg.Header.Get("Content-Type")
	if ctype == "" {
		return "", false
	}
	html, err := findHTMLPart(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil || html == "" {
		return "", false
	}
	return html, true
}

var errNoHTMLPart = errors.New("no text/html part")

func findHTMLPart(header textproto.MIMEHeader, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("parse content type: %w", err)
	}
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return "", errNoHTMLPart
		}
		reader := multipart.NewReader(body, boundary)
		for {
			part, err := reader.NextRawPart()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return "", errNoHTMLPart
				}
				return "", fmt.Errorf("read mime part: %w", err)
			}
			html, err := findHTMLPart(part.Header, part)
			if err == nil && html != "" {
				return html, nil
			}
		}
	case mediaType == "text/html":
		content, err := decodeTransfer(header.Get("Content-Transfer-Encoding"), body)
		if err != nil {
			return "", err
		}
		return toUTF8(content, params["charset"]), nil
	default:
		return "", errNoHTMLPart
	}
}

func decodeTransfer(encoding string, body io.Reader) ([]byte, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	default:
		reader = body
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	return data, nil
}

func toUTF8(content []byte, label string) string {
	if label == "" || strings.EqualFold(label, "utf-8") {
		return string(content)
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return string(content)
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

func decodeDeclared(raw digest.RawPayload) (string, bool) {
	switch raw.Encoding {
	case digest.EncodingQuotedPrintable, digest.EncodingBase64:
		data, err := decodeTransfer(string(raw.Encoding), bytes.NewReader(raw.Data))
		if err != nil {
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}

// htmlFromMarker drops anything ahead of the first <html tag, such as
// header lines left over from a raw message.
func htmlFromMarker(text string) (string, bool) {
	idx := strings.Index(strings.ToLower(text), "<html")
	if idx < 0 {
		return "", false
	}
	return text[idx:], true
}

func recoverQuotedPrintable(text string) (string, bool) {
	marked := false
	for _, marker := range qpMarkers {
		if strings.Contains(text, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return "", false
	}
	data, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(text)))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}
