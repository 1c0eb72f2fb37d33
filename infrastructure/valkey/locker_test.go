package valkey

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "autopost:", normalizePrefix("autopost"))
	assert.Equal(t, "autopost:", normalizePrefix("autopost:"))
	assert.Equal(t, "", normalizePrefix(""))
}

func TestClientKey(t *testing.T) {
	c := &Client{keyPrefix: "autopost:"}
	assert.Equal(t, "autopost:lock:cron_scheduled_post", c.Key("lock", "cron_scheduled_post"))
	assert.Equal(t, "autopost", c.Key())
}

func TestLocker_AgainstServer(t *testing.T) {
	addr := os.Getenv("VALKEY_TEST_ADDRESS")
	if addr == "" {
		t.Skip("VALKEY_TEST_ADDRESS not set")
	}
	client, err := NewClient(Config{Address: addr, KeyPrefix: "autopost-test"})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	a := NewLocker(client, "node-a")
	b := NewLocker(client, "node-b")
	name := "cron_test_" + time.Now().Format("150405.000")

	ok, err := a.Acquire(ctx, name, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, name, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Release(ctx, name))
	require.NoError(t, a.Release(ctx, name))

	ok, err = b.Acquire(ctx, name, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, name))
}
