package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*DocumentLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDocumentLocker(client, 5*time.Second), mr
}

func TestDocumentLockerRejectsSecondHolder(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := DocumentLockKey("t1", "requisition", "r1")

	release, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	_, err = locker.Lock(ctx, key)
	require.ErrorIs(t, err, ErrLockHeld)

	// A different document is unaffected.
	other, err := locker.Lock(ctx, DocumentLockKey("t1", "requisition", "r2"))
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists(key))

	again, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	again()
}

func TestDocumentLockerReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := DocumentLockKey("t1", "quotation", "q1")

	release, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	// The lock expires and another holder takes over.
	mr.FastForward(6 * time.Second)
	require.False(t, mr.Exists(key))
	second, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	release()
	require.True(t, mr.Exists(key))
	second()
	require.False(t, mr.Exists(key))
}
