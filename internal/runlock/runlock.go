// Package runlock provides a Redis-backed advisory lease that keeps two
// depletion runs from overlapping when the scheduler double-fires.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when it still belongs to the
// caller, so an expired lease taken over by another run is never removed.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// DefaultTTL bounds how long a crashed run can hold the lease.
const DefaultTTL = 10 * time.Minute

// Locker hands out a single advisory lease per key. A nil Locker is
// valid and always grants the lease: without Redis configured, mutual
// exclusion is a deployment-level concern.
type Locker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a Redis-backed locker. Returns nil when addr is
// empty.
func NewRedisLocker(addr, password, key string, ttl time.Duration) *Locker {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "prontuario:runlock:stock-depletion"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		key: key,
		ttl: ttl,
	}
}

// Acquire tries to take the lease. On success it returns a release
// function and true. It fails closed: a Redis error is treated as "lease
// unavailable" rather than risking a concurrent double run.
func (l *Locker) Acquire() (release func(), ok bool) {
	if l == nil || l.client == nil {
		return func() {}, true
	}
	token := randomToken()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil || !acquired {
		return nil, false
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Result()
	}, true
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return hex.EncodeToString(buf)
}
