// Package lock serialises mutations of one product type's open lot so two
// concurrent writers cannot both close it out.
package lock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

func LotKey(userID string, productType string) string {
	return fmt.Sprintf("lot:%s:%s", userID, productType)
}

// DueKey guards one customer's due log list.
func DueKey(userID string, dueID string) string {
	return fmt.Sprintf("due:%s:%s", userID, dueID)
}

// ObtainAll takes every key in sorted order and returns a release func for
// all of them. Duplicate keys are taken once. On failure nothing stays held.
func ObtainAll(ctx context.Context, locker Locker, keys ...string) (func(), error) {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]Lock, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Release(context.Background())
		}
	}
	for _, key := range ordered {
		l, err := locker.Obtain(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu      sync.Mutex
	keys    map[string]chan struct{}
	maxWait time.Duration
}

func NewLocalLocker(maxWait time.Duration) *LocalLocker {
	return &LocalLocker{keys: make(map[string]chan struct{}), maxWait: maxWait}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.keys[key] = ch
	}
	return ch
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	ch := l.slot(key)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case ch <- struct{}{}:
		return &localLock{ch: ch}, nil
	case <-waitCtx.Done():
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
}

type localLock struct {
	once sync.Once
	ch   chan struct{}
}

func (l *localLock) Release(_ context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}

// RedisLocker shares locks across instances through redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(ttl/(100*time.Millisecond))),
	}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l, err := r.client.Obtain(ctx, "poultryledger:"+key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
