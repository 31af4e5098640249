package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	require.NoError(t, client.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), addr)
	require.ErrorContains(t, err, "platform/cache: ping")
}
