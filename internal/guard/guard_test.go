package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis models SET NX and the release script over a map.
type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]any
	ttls    map[string]time.Duration
	evals   []string
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]any), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value
	f.ttls[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, keys[0])
	if f.keys[keys[0]] == args[0] {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisFirstDelivery(t *testing.T) {
	rdb := newFakeRedis()
	g := NewRedis(rdb, RedisOptions{DedupeTTL: time.Minute})

	first, err := g.FirstDelivery(context.Background(), "swiftchat:bot-1:m1")
	if err != nil || !first {
		t.Fatalf("first delivery = %v, %v", first, err)
	}
	again, err := g.FirstDelivery(context.Background(), "swiftchat:bot-1:m1")
	if err != nil || again {
		t.Fatalf("repeat delivery = %v, %v", again, err)
	}
	if rdb.ttls[dedupePrefix+"swiftchat:bot-1:m1"] != time.Minute {
		t.Fatalf("ttl = %v", rdb.ttls)
	}
}

func TestRedisForgetAllowsRedelivery(t *testing.T) {
	rdb := newFakeRedis()
	g := NewRedis(rdb, RedisOptions{DedupeTTL: time.Minute})
	ctx := context.Background()

	if first, _ := g.FirstDelivery(ctx, "swiftchat:bot-1:m2"); !first {
		t.Fatal("first delivery rejected")
	}
	if err := g.Forget(ctx, "swiftchat:bot-1:m2"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := rdb.keys[dedupePrefix+"swiftchat:bot-1:m2"]; ok {
		t.Fatalf("keys = %v", rdb.keys)
	}
	if first, _ := g.FirstDelivery(ctx, "swiftchat:bot-1:m2"); !first {
		t.Fatal("forgotten delivery still treated as duplicate")
	}
}

func TestRedisFirstDeliveryError(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = errors.New("connection reset")
	g := NewRedis(rdb, RedisOptions{})
	if _, err := g.FirstDelivery(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisLockReleasesOwnToken(t *testing.T) {
	rdb := newFakeRedis()
	g := NewRedis(rdb, RedisOptions{LockTTL: time.Second, PollInterval: time.Millisecond})
	g.token = func() string { return "tok-1" }

	unlock, err := g.Lock(context.Background(), "bot-1:9198")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if rdb.keys[lockPrefix+"bot-1:9198"] != "tok-1" {
		t.Fatalf("keys = %v", rdb.keys)
	}
	unlock()
	if _, held := rdb.keys[lockPrefix+"bot-1:9198"]; held {
		t.Fatal("lock still held after unlock")
	}
}

func TestRedisLockWaitsForRelease(t *testing.T) {
	rdb := newFakeRedis()
	g := NewRedis(rdb, RedisOptions{LockTTL: time.Second, PollInterval: time.Millisecond})

	unlock, err := g.Lock(context.Background(), "u")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := g.Lock(context.Background(), "u")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		second()
	}()
	time.Sleep(5 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second lock acquired while first was held")
	default:
	}
	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestRedisLockHonoursContext(t *testing.T) {
	rdb := newFakeRedis()
	rdb.keys[lockPrefix+"u"] = "someone-else"
	g := NewRedis(rdb, RedisOptions{LockTTL: time.Second, PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Lock(ctx, "u"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Lock = %v, want ErrLockTimeout", err)
	}
}

func TestLocalFirstDeliveryExpires(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	g := NewLocal(time.Minute)
	g.now = func() time.Time { return now }

	if ok, _ := g.FirstDelivery(context.Background(), "k"); !ok {
		t.Fatal("first delivery rejected")
	}
	if ok, _ := g.FirstDelivery(context.Background(), "k"); ok {
		t.Fatal("duplicate accepted")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := g.FirstDelivery(context.Background(), "k"); !ok {
		t.Fatal("expired key still rejected")
	}
}

func TestLocalForget(t *testing.T) {
	g := NewLocal(time.Hour)
	ctx := context.Background()
	g.FirstDelivery(ctx, "k")
	if err := g.Forget(ctx, "k"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if ok, _ := g.FirstDelivery(ctx, "k"); !ok {
		t.Fatal("forgotten key still rejected")
	}
}

func TestLocalLockSerializes(t *testing.T) {
	g := NewLocal(time.Minute)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := g.Lock(context.Background(), "bot:user")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
}

func TestLocalLockHonoursContext(t *testing.T) {
	g := NewLocal(time.Minute)
	unlock, _ := g.Lock(context.Background(), "k")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Lock(ctx, "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("Lock = %v", err)
	}
}
