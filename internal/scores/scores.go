// Package scores hands out match scores that are unique within a batch.
//
// A requested score is issued as is when free. Otherwise the nearest free value
// is searched outward (+1, -1, +2, -2, ...) and, when that fails, the range is
// scanned from the bottom.
package scores

import (
	"context"
	"errors"
	"sync"
)

const (
	MinScore = 1
	MaxScore = 100
)

// ErrExhausted is returned when every score in range has been issued.
var ErrExhausted = errors.New("score registry exhausted")

// Registry records the scores issued in one batch.
type Registry interface {
	Allocate(ctx context.Context, preferred int) (int, error)
	Reset(ctx context.Context) error
}

// Clamp limits score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Candidates lists scores in the order they are tried for preferred.
func Candidates(preferred int) []int {
	preferred = Clamp(preferred)
	out := make([]int, 0, MaxScore)
	seen := make(map[int]struct{}, MaxScore)
	push := func(v int) {
		if v < MinScore || v > MaxScore {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	push(preferred)
	for offset := 1; offset < MaxScore; offset++ {
		push(preferred + offset)
		push(preferred - offset)
	}
	for v := MinScore; v <= MaxScore; v++ {
		push(v)
	}
	return out
}

// MemoryRegistry is a Registry kept in process memory.
type MemoryRegistry struct {
	mu   sync.Mutex
	used map[int]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{used: make(map[int]struct{})}
}

func (r *MemoryRegistry) Allocate(ctx context.Context, preferred int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, candidate := range Candidates(preferred) {
		if _, taken := r.used[candidate]; taken {
			continue
		}
		r.used[candidate] = struct{}{}
		return candidate, nil
	}
	return 0, ErrExhausted
}

func (r *MemoryRegistry) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = make(map[int]struct{})
	return nil
}

// Issued returns how many scores are currently taken.
func (r *MemoryRegistry) Issued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.used)
}

// Pool keeps one registry per posting so that batches for different postings do
// not constrain each other.
type Pool struct {
	mu         sync.Mutex
	newReg     func(posting string) Registry
	registries map[string]Registry
}

func NewPool(newRegistry func(posting string) Registry) *Pool {
	return &Pool{newReg: newRegistry, registries: make(map[string]Registry)}
}

// NewMemoryPool returns a Pool of in-memory registries.
func NewMemoryPool() *Pool {
	return NewPool(func(string) Registry { return NewMemoryRegistry() })
}

// Get returns the registry for posting, creating it on first use.
func (p *Pool) Get(posting string) Registry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reg, ok := p.registries[posting]; ok {
		return reg
	}
	reg := p.newReg(posting)
	p.registries[posting] = reg
	return reg
}
