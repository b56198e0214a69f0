package article

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  Hello \n\t world  ":        "Hello world",
		"Jane Doe Follow":             "Jane Doe",
		"Some heading Sign up":        "Some heading",
		"Title Sign in Follow":        "Title",
		"Unfollowed stays Unfollowed": "Unfollowed stays Unfollowed",
		"":                            "",
	}
	for in, want := range cases {
		require.Equal(t, want, CleanText(in), in)
	}
}

func TestTitleChainFallsBackToH1(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Page Title</title></head><body>
<h1>Plain Heading Title</h1><article><p>` + paragraph + `</p></article></body></html>`
	content, err := NewExtractor(nil, nil).Extract(digest.ArticleStub{URL: "https://medium.com/@a/b-1234abcd"}, []byte(page), "text/html", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Plain Heading Title", content.Title)
	require.Equal(t, digest.DefaultAuthor, content.Author)
}

func TestTitleChainUsesTitleTag(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>From The Title Tag</title></head><body><h1>Hi</h1><p>` + paragraph + `</p></body></html>`
	content, err := NewExtractor(nil, nil).Extract(digest.ArticleStub{URL: "https://medium.com/@a/b-1234abcd"}, []byte(page), "", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "From The Title Tag", content.Title)
}

func TestBodyFallsBackToParagraphs(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1>Story Without Article</h1>
<div><p>` + paragraph + `</p><p>short one</p><p>` + paragraph + `</p></div></body></html>`
	content, err := NewExtractor(nil, nil).Extract(digest.ArticleStub{URL: "https://medium.com/@a/b-1234abcd", Author: digest.DefaultAuthor}, []byte(page), "text/html", time.Time{})
	require.NoError(t, err)
	require.Equal(t, CleanText(paragraph)+"\n\n"+CleanText(paragraph), content.Body)
}

func TestAuthorFromMeta(t *testing.T) {
	t.Parallel()

	content, err := NewExtractor(nil, nil).Extract(
		digest.ArticleStub{URL: "https://medium.com/@a/b-1234abcd", Author: digest.DefaultAuthor},
		[]byte(storyPage("Meta Author Story")), "text/html", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Meta Author", content.Author)
}

func TestExtractDecodesDeclaredCharset(t *testing.T) {
	t.Parallel()

	// "Caf\xe9" is latin-1 for "Café".
	page := "<html><body><h1>Caf\xe9 Culture Notes</h1><p>" + paragraph + "</p><p>" + paragraph + "</p></body></html>"
	content, err := NewExtractor(nil, nil).Extract(digest.ArticleStub{URL: "https://medium.com/@a/b-1234abcd"}, []byte(page), "text/html; charset=iso-8859-1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "Café Culture Notes", content.Title)
}

func TestExtractNoTitle(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(nil, nil).Extract(digest.ArticleStub{URL: "https://medium.com/@a/b"}, []byte("<html><body><p>"+strings.Repeat("x", 200)+"</p></body></html>"), "text/html", time.Time{})
	require.True(t, digest.IsKind(err, digest.KindContentExtraction))
	require.Equal(t, digest.Fatal, digest.ClassificationOf(err))
}
