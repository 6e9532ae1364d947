// Package dice provides the randomness source consumed by the battle engine and the roll types
// built from it.
package dice

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

var (
	// ErrInterrupted is returned by a source that cannot deliver the roll right now, for example
	// because the peer that shares the seed disconnected. The caller is expected to resume later.
	ErrInterrupted = errors.New("dice roll interrupted")
	// ErrExhausted is returned by a scripted source that ran out of values.
	ErrExhausted = errors.New("scripted dice exhausted")
)

// Category tags a roll for history and replay.
type Category int

const (
	CategoryBattle Category = iota
	CategoryBombing
	CategoryAA
	CategoryAirBattle
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryBattle:
		return "BATTLE"
	case CategoryBombing:
		return "BOMBING"
	case CategoryAA:
		return "AA"
	case CategoryAirBattle:
		return "AIR_BATTLE"
	default:
		return "UNKNOWN"
	}
}

// Source produces zero-based die values in [0, sides).
type Source interface {
	Roll(ctx context.Context, sides, count int, player string, category Category, annotation string) ([]int, error)
}

// SeededSource is a deterministic source; two sources with the same seed produce the same rolls.
type SeededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource creates a seeded source.
func NewSeededSource(seed int64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewSource(seed))}
}

// Roll implements Source.
func (s *SeededSource) Roll(ctx context.Context, sides, count int, _ string, _ Category, _ string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	if sides <= 0 {
		return nil, fmt.Errorf("invalid dice sides %d", sides)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, count)
	for i := range out {
		out[i] = s.rng.Intn(sides)
	}
	return out, nil
}

// ScriptedSource replays a fixed list of values. It is used by tests and by replays of recorded games.
type ScriptedSource struct {
	mu        sync.Mutex
	values    []int
	calls     int
	interrupt int
}

// NewScriptedSource returns a source that yields the values in order.
func NewScriptedSource(values ...int) *ScriptedSource {
	return &ScriptedSource{values: append([]int(nil), values...)}
}

// Add appends more values.
func (s *ScriptedSource) Add(values ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, values...)
}

// InterruptNext makes the next n calls fail with ErrInterrupted without consuming values.
func (s *ScriptedSource) InterruptNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupt = n
}

// Calls returns how many rolls were served successfully.
func (s *ScriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Remaining returns how many scripted values are left.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Roll implements Source.
func (s *ScriptedSource) Roll(ctx context.Context, sides, count int, _ string, _ Category, annotation string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupt > 0 {
		s.interrupt--
		return nil, ErrInterrupted
	}
	if count > len(s.values) {
		return nil, fmt.Errorf("%w: need %d for %q, have %d", ErrExhausted, count, annotation, len(s.values))
	}
	out := make([]int, count)
	copy(out, s.values[:count])
	s.values = s.values[count:]
	for i, v := range out {
		if v < 0 || v >= sides {
			return nil, fmt.Errorf("scripted value %d out of range for d%d", v, sides)
		}
		out[i] = v
	}
	s.calls++
	return out, nil
}
