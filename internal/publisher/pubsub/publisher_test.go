package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRequiresConfiguredClient(t *testing.T) {
	t.Parallel()

	var pub *Publisher
	_, err := pub.Publish(context.Background(), "runs", []byte("{}"))
	require.ErrorContains(t, err, "not configured")

	pub = NewWithClient(nil)
	_, err = pub.Publish(context.Background(), "runs", []byte("{}"))
	require.ErrorContains(t, err, "not configured")
}

func TestNewRequiresProjectID(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.ErrorContains(t, err, "project id is required")
}

func TestCloseIsNilSafe(t *testing.T) {
	t.Parallel()

	var pub *Publisher
	require.NoError(t, pub.Close())
	require.NoError(t, NewWithClient(nil).Close())
}
