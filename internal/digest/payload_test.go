package digest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadFromEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		event any
		want  string
	}{
		{name: "raw string", event: "<html>hi</html>", want: "<html>hi</html>"},
		{name: "bytes", event: []byte("mail"), want: "mail"},
		{name: "body wins", event: map[string]any{"message": "m", "body": "b", "html": "h"}, want: "b"},
		{name: "content before html", event: map[string]any{"html": "h", "content": "c"}, want: "c"},
		{name: "message last", event: map[string]any{"message": "m"}, want: "m"},
		{name: "serialized fallback", event: map[string]any{"other": "x"}, want: `{"other":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			payload, err := PayloadFromEvent(tc.event)
			require.NoError(t, err)
			require.Equal(t, tc.want, string(payload.Data))
		})
	}
}

func TestPayloadFromEventRejectsEmpty(t *testing.T) {
	t.Parallel()

	for _, event := range []any{nil, "", "   ", map[string]any{}, 42} {
		_, err := PayloadFromEvent(event)
		require.Error(t, err)
		require.True(t, IsKind(err, KindValidation))
	}
	_, err := PayloadFromEvent("")
	require.ErrorIs(t, err, ErrEmptyPayload)
}
