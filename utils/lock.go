package utils

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a named stage so only one invocation runs at a time.
// TryLock never blocks: ok is false when the lock is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[name]; busy {
		return nil, false, nil
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares stage locks between processes. The TTL bounds how long a
// crashed holder can block the stage.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisLocker(opt *redis.Options, ttl time.Duration) *RedisLocker {
	return &RedisLocker{Client: redis.NewClient(opt), Prefix: "skill-radar:lock:", TTL: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := l.Prefix + name
	token := uuid.NewString()

	ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis lock %s", key)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// Release on a fresh context: the run context may already be cancelled.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.Client, []string{key}, token).Err()
	}, true, nil
}

func (l *RedisLocker) Close() error {
	return l.Client.Close()
}
