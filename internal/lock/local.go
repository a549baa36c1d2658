package lock

import (
	"context"
	"fmt"
	"sync"
)

// LocalLocker holds keyed locks in process memory.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker returns an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until every key is held or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ordered := normalizeKeys(keys)
	held := make([]chan struct{}, 0, len(ordered))

	release := func(context.Context) {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range ordered {
		ch := l.slot(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release(ctx)
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}

	var once sync.Once
	return func(ctx context.Context) {
		once.Do(func() { release(ctx) })
	}, nil
}
