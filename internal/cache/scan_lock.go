package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ScanLock is a best-effort distributed mutex so that a single replica runs
// the SLA scan at a time. Without redis every acquire succeeds.
type ScanLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewScanLock creates a lock on key that expires after ttl if never released
func NewScanLock(client *redis.Client, key string, ttl time.Duration) *ScanLock {
	return &ScanLock{client: client, key: key, ttl: ttl}
}

// Acquire tries to take the lock. The returned release func must be called
// when acquired is true.
func (l *ScanLock) Acquire(ctx context.Context) (release func(), acquired bool, err error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}, true, nil
}
