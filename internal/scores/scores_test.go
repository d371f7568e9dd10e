package scores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func registries(t *testing.T) map[string]Registry {
	_, rdb := newTestRedis(t)
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"redis":  NewRedisRegistry(rdb, DefaultKeyPrefix+"test", time.Hour),
	}
}

func TestCandidatesOrder(t *testing.T) {
	tests := []struct {
		name      string
		preferred int
		head      []int
	}{
		{name: "middle", preferred: 62, head: []int{62, 63, 61, 64, 60}},
		{name: "top edge", preferred: 100, head: []int{100, 99, 98, 97}},
		{name: "bottom edge", preferred: 1, head: []int{1, 2, 3}},
		{name: "clamped high", preferred: 140, head: []int{100, 99}},
		{name: "clamped low", preferred: -3, head: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Candidates(tt.preferred)
			if len(got) != MaxScore {
				t.Fatalf("expected %d candidates, got %d", MaxScore, len(got))
			}
			for i, want := range tt.head {
				if got[i] != want {
					t.Fatalf("candidate %d: expected %d, got %d (%v)", i, want, got[i], got[:len(tt.head)])
				}
			}
		})
	}
}

func TestAllocateNearestFree(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := []int{62, 63, 61, 64, 60}
			for i, w := range want {
				got, err := reg.Allocate(ctx, 62)
				if err != nil {
					t.Fatalf("allocate %d: %v", i, err)
				}
				if got != w {
					t.Fatalf("allocate %d: expected %d, got %d", i, w, got)
				}
			}
		})
	}
}

func TestAllocateExhaustionAndReset(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seen := make(map[int]bool)
			for i := 0; i < MaxScore; i++ {
				got, err := reg.Allocate(ctx, 50)
				if err != nil {
					t.Fatalf("allocate %d: %v", i, err)
				}
				if seen[got] {
					t.Fatalf("score %d issued twice", got)
				}
				seen[got] = true
			}

			if _, err := reg.Allocate(ctx, 50); !errors.Is(err, ErrExhausted) {
				t.Fatalf("expected ErrExhausted, got %v", err)
			}

			if err := reg.Reset(ctx); err != nil {
				t.Fatalf("reset: %v", err)
			}
			got, err := reg.Allocate(ctx, 50)
			if err != nil || got != 50 {
				t.Fatalf("expected 50 after reset, got %d (%v)", got, err)
			}
		})
	}
}

func TestAllocateConcurrent(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const workers = 40

			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				got = make(map[int]int)
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					score, err := reg.Allocate(ctx, 70)
					if err != nil {
						t.Errorf("allocate: %v", err)
						return
					}
					mu.Lock()
					got[score]++
					mu.Unlock()
				}()
			}
			wg.Wait()

			if len(got) != workers {
				t.Fatalf("expected %d distinct scores, got %d", workers, len(got))
			}
			for score, n := range got {
				if n != 1 {
					t.Fatalf("score %d issued %d times", score, n)
				}
			}
		})
	}
}

func TestRedisRegistryTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	reg := NewRedisRegistry(rdb, "scores:ttl", time.Minute)

	if _, err := reg.Allocate(context.Background(), 10); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if ttl := mr.TTL("scores:ttl"); ttl != time.Minute {
		t.Fatalf("expected one minute TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	got, err := reg.Allocate(context.Background(), 10)
	if err != nil || got != 10 {
		t.Fatalf("expected expired set to free 10, got %d (%v)", got, err)
	}
}

func TestRedisRegistryError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	reg := NewRedisRegistry(rdb, "scores:down", 0)
	mr.Close()

	if _, err := reg.Allocate(context.Background(), 10); err == nil {
		t.Fatal("expected an error when redis is unavailable")
	}
}

func TestMemoryRegistryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reg := NewMemoryRegistry()
	if _, err := reg.Allocate(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if reg.Issued() != 0 {
		t.Fatalf("cancelled allocation must not take a score")
	}
}

func TestPoolIsolatesPostings(t *testing.T) {
	_, rdb := newTestRedis(t)
	pools := map[string]*Pool{
		"memory": NewMemoryPool(),
		"redis":  NewRedisPool(rdb, "", time.Hour),
	}

	for name, pool := range pools {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := pool.Get("backend").Allocate(ctx, 80)
			if err != nil {
				t.Fatalf("allocate: %v", err)
			}
			b, err := pool.Get("frontend").Allocate(ctx, 80)
			if err != nil {
				t.Fatalf("allocate: %v", err)
			}
			if a != 80 || b != 80 {
				t.Fatalf("postings should not share scores: %d %d", a, b)
			}
			if pool.Get("backend") != pool.Get("backend") {
				t.Fatal("pool should reuse the registry for a posting")
			}
			again, _ := pool.Get("backend").Allocate(ctx, 80)
			if again != 81 {
				t.Fatalf("expected 81 for second backend allocation, got %d", again)
			}
		})
	}
}
