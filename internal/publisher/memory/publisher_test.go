package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/medium-digest/internal/digest"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()
	id1, err := pub.Publish(ctx, "outcomes", digest.Outcome{URL: "https://medium.com/@a/x-1a", Delivered: true})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(ctx, "runs", map[string]string{"run_id": "r"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	require.Len(t, pub.Messages(""), 2)
	outcomes := pub.Messages("outcomes")
	require.Len(t, outcomes, 1)
	require.Contains(t, string(outcomes[0].Data), `"delivered":true`)

	outcomes[0].Topic = "modified"
	require.Equal(t, "outcomes", pub.Messages("outcomes")[0].Topic)
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "outcomes", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, New().Messages(""))
}
