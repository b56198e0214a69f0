package digest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// payloadKeys lists the structured-event keys that may carry email content, in priority order.
var payloadKeys = []string{"body", "content", "html", "message"}

// PayloadFromEvent turns an entry-point event into a RawPayload. Strings and
// byte slices are used as-is; maps contribute the first non-empty priority
// key, falling back to their JSON serialization.
func PayloadFromEvent(event any) (RawPayload, error) {
	var content string
	switch v := event.(type) {
	case nil:
		return RawPayload{}, NewError(KindValidation, "payload", ErrEmptyPayload)
	case string:
		content = v
	case []byte:
		content = string(v)
	case RawPayload:
		if len(strings.TrimSpace(string(v.Data))) == 0 {
			return RawPayload{}, NewError(KindValidation, "payload", ErrEmptyPayload)
		}
		return v, nil
	case map[string]any:
		if len(v) == 0 {
			return RawPayload{}, NewError(KindValidation, "payload", ErrEmptyPayload)
		}
		content = contentFromMap(v)
		if content == "" {
			data, err := json.Marshal(v)
			if err != nil {
				return RawPayload{}, NewError(KindValidation, "payload", fmt.Errorf("serialize event: %w", err))
			}
			content = string(data)
		}
	default:
		return RawPayload{}, NewError(KindValidation, "payload", fmt.Errorf("unsupported event type %T", event))
	}
	if strings.TrimSpace(content) == "" {
		return RawPayload{}, NewError(KindValidation, "payload", ErrEmptyPayload)
	}
	return RawPayload{Data: []byte(content), ContentKind: ContentUnknown}, nil
}

func contentFromMap(m map[string]any) string {
	for _, key := range payloadKeys {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
