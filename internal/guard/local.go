package guard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Local is an in-process guard for single replica deployments.
type Local struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	locks map[string]chan struct{}
	// sweeps counts FirstDelivery calls between expiry sweeps.
	sweeps int
}

// NewLocal returns a guard remembering deliveries for ttl.
func NewLocal(ttl time.Duration) *Local {
	return &Local{
		ttl:   ttl,
		now:   time.Now,
		seen:  make(map[string]time.Time),
		locks: make(map[string]chan struct{}),
	}
}

// FirstDelivery reports whether key was not seen within the TTL.
func (l *Local) FirstDelivery(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweeps++
	if l.sweeps >= 256 {
		l.sweeps = 0
		for k, exp := range l.seen {
			if !now.Before(exp) {
				delete(l.seen, k)
			}
		}
	}
	if exp, ok := l.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.seen[key] = now.Add(l.ttl)
	return true, nil
}

// Forget removes key from the seen set.
func (l *Local) Forget(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.seen, key)
	l.mu.Unlock()
	return nil
}

// Lock waits for the per-key slot. The returned func must be called once.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.locks[key]
		if !busy {
			ch := make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, key)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-held:
		}
	}
}
