// Package keylock serializes work per string key, such as concurrent
// retries that share an idempotency key.
package keylock

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the shard count used by New when shards <= 0.
const DefaultShards = 256

// Locker is a fixed pool of channel-backed mutexes selected by key hash.
// Memory stays bounded however many keys are seen; unrelated keys that
// land on the same shard wait on each other.
type Locker struct {
	shards []chan struct{}
}

// New creates a Locker with the given number of shards.
func New(shards int) *Locker {
	if shards <= 0 {
		shards = DefaultShards
	}
	l := &Locker{shards: make([]chan struct{}, shards)}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock blocks until the key's shard is free or ctx is done. On success the
// caller must call the returned unlock exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (unlock func(), err error) {
	ch := l.shards[l.index(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Locker) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(l.shards))
}
