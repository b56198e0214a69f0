package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

func TestValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want bool
	}{
		{"https://medium.com/@jane.doe/building-things-1a2b3c4d5e6f", true},
		{"https://medium.com/@jane/some-article", true},
		{"https://engineering.medium.com/scaling-out-9f8e7d6c", true},
		{"https://medium.com/better-programming/clean-code-abc123def", true},
		{"https://towardsdatascience.com/a-gentle-intro-1234abcd5678", true},
		{"http://medium.com/@jane/some-article-1a2b3c4d", false},
		{"/@jane/relative-article", false},
		{"https://medium.com/jobs", false},
		{"https://medium.com/jobs/engineer-1234abcd", false},
		{"https://miro.medium.com/img.png", false},
		{"https://cdn-images-1.medium.com/max/800/x-1a2b3c.jpeg", false},
		{"https://help.medium.com/hc/en-us/articles-1234abcd", false},
		{"https://medium.com/me/settings", false},
		{"https://medium.com/plans/upgrade", false},
		{"https://policy.medium.com/terms-1234abcd", false},
		{"https://medium.com/", false},
		{"https://medium.com/?source=email", false},
		{"https://itunes.apple.com/app/medium/id828256236", false},
		{"https://medium.com/@jane/theme-1234abcd.css", false},
		{"https://example.com/@jane/article-1234abcd", false},
		{"https://notmedium.com/@alice/story-1a2b3c4d", false},
		{"https://evil.example/redirect?to=medium.com/@alice/story-1a2b3c4d", false},
		{"https://twitter.com/intent/tweet?url=https://medium.com/@a/story-1a2b3c4d", false},
		{"https://medium.com.evil.example/@alice/story-1a2b3c4d", false},
		{"https://www.medium.com/@alice/story-1a2b3c4d", true},
		{"https://Medium.com/@alice/story-1a2b3c4d?source=email-digest", true},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Valid(tc.url))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips tracking",
			in:   "https://medium.com/@a/post-1234abcd?source=email-digest&utm_campaign=x&UTM_Medium=y&ref=z&referrer=w",
			want: "https://medium.com/@a/post-1234abcd",
		},
		{
			name: "keeps other params sorted",
			in:   "https://medium.com/@a/post-1234abcd?sk=secret&source=digest&b=2",
			want: "https://medium.com/@a/post-1234abcd?b=2&sk=secret",
		},
		{
			name: "lowercases host and drops fragment and port",
			in:   "HTTPS://Medium.COM:443/@a/Post-1234abcd#responses",
			want: "https://medium.com/@a/Post-1234abcd",
		},
		{
			name: "unparseable returned as-is",
			in:   "://not a url",
			want: "://not a url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://medium.com/@a/post-1234abcd?source=x&sk=1",
		"https://pub.medium.com/story-99aa88bb?utm_source=digest#top",
		"https://medium.com/publication/article-slug?b=2&a=1&a=0",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), in)
	}
}

func TestNormalizerDeduplicatesFirstWins(t *testing.T) {
	t.Parallel()

	candidates := []digest.CandidateLink{
		{URL: "https://medium.com/@a/post-1234abcd?source=digest", Title: "First Title Here", Author: "Ann"},
		{URL: "https://medium.com/jobs", Title: "Jobs"},
		{URL: "https://medium.com/@a/post-1234abcd?utm_source=other", Title: "Second Title", Author: "Bob"},
		{URL: "https://medium.com/@a/post-1234abcd#frag", Title: "Third"},
		{URL: "https://medium.com/@b/other-5678efab", Title: "Other Story Title"},
	}
	stubs := NewNormalizer(zap.NewNop()).Normalize(candidates)
	require.Equal(t, []digest.ArticleStub{
		{URL: "https://medium.com/@a/post-1234abcd", Title: "First Title Here", Author: "Ann"},
		{URL: "https://medium.com/@b/other-5678efab", Title: "Other Story Title", Author: digest.DefaultAuthor},
	}, stubs)
}

func TestHostMatcher(t *testing.T) {
	t.Parallel()

	m := NewHostMatcher(DefaultArticleHosts)
	require.True(t, m.MatchURL("https://medium.com/@a/b"))
	require.True(t, m.MatchURL("https://engineering.medium.com/b"))
	require.True(t, m.MatchURL("https://towardsdatascience.com/x"))
	require.False(t, m.MatchURL("https://notmedium.com/x"))
	require.False(t, m.MatchURL("https://evil.com/medium.com"))
	require.Nil(t, NewHostMatcher([]string{" ", ""}))

	var nilMatcher *HostMatcher
	require.False(t, nilMatcher.MatchHost("medium.com"))
}
