package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// newTestClient starts an in-process Redis server and connects a Client to
// it. Both are torn down with the test. The server handle is returned for
// tests that need to manipulate time or inspect keys directly.
func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestClientPing(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestClientRefusesUnreachableServer(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis: ping")
}
