package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DocumentLockKey builds redis keys for per-document critical sections.
func DocumentLockKey(tenantID, kind, id string) string {
	return fmt.Sprintf("procurement:%s:%s:%s:lock", tenantID, kind, id)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// DocumentLocker hands out short-lived exclusive locks backed by redis. A held
// lock is never waited on; Lock fails fast with ErrLockHeld.
type DocumentLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDocumentLocker constructs a locker. ttl bounds how long a crashed holder
// can block a document.
func NewDocumentLocker(client *redis.Client, ttl time.Duration) *DocumentLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &DocumentLocker{client: client, ttl: ttl}
}

// Lock acquires key and returns the matching release func.
func (l *DocumentLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return func() {
		// Release on a fresh context so a cancelled request still unlocks.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
