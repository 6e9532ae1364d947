package history

import (
	"sort"
	"sync"
)

// Watcher observes battle events and accumulates phase statistics.
type Watcher interface {
	Watch(event Event)
	// Reset clears the accumulated state, typically at the end of a combat phase.
	Reset()
	Key() string
}

// WatcherRegistry fans events out to watchers keyed by name.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
	handle   int
	bus      *EventBus
}

// NewWatcherRegistry creates a registry. When bus is not nil the registry subscribes to it.
func NewWatcherRegistry(bus *EventBus) *WatcherRegistry {
	wr := &WatcherRegistry{
		watchers: make(map[string]Watcher),
		handle:   -1,
		bus:      bus,
	}
	if bus != nil {
		wr.handle = bus.Subscribe(wr.NotifyWatchers)
	}
	return wr
}

// Close detaches the registry from its bus.
func (wr *WatcherRegistry) Close() {
	if wr.bus != nil && wr.handle >= 0 {
		wr.bus.Unsubscribe(wr.handle)
		wr.handle = -1
	}
}

// AddWatcher registers a watcher, replacing any with the same key.
func (wr *WatcherRegistry) AddWatcher(watcher Watcher) {
	if watcher == nil {
		return
	}
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.watchers[watcher.Key()] = watcher
}

// RemoveWatcher removes a watcher by key.
func (wr *WatcherRegistry) RemoveWatcher(key string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	delete(wr.watchers, key)
}

// Watcher returns the watcher with the key, or nil.
func (wr *WatcherRegistry) Watcher(key string) Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.watchers[key]
}

// ResetWatchers resets every watcher.
func (wr *WatcherRegistry) ResetWatchers() {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	for _, w := range wr.watchers {
		w.Reset()
	}
}

// NotifyWatchers hands the event to every watcher.
func (wr *WatcherRegistry) NotifyWatchers(event Event) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	for _, w := range wr.watchers {
		w.Watch(event)
	}
}

// TUVLossWatcherKey is the registry key of the TUV loss watcher.
const TUVLossWatcherKey = "tuv_loss"

// TUVLossWatcher sums the value of units each player lost to casualties this phase.
type TUVLossWatcher struct {
	mu   sync.Mutex
	lost map[string]int
}

// NewTUVLossWatcher creates an empty watcher.
func NewTUVLossWatcher() *TUVLossWatcher {
	return &TUVLossWatcher{lost: make(map[string]int)}
}

// Key implements Watcher.
func (w *TUVLossWatcher) Key() string { return TUVLossWatcherKey }

// Watch implements Watcher.
func (w *TUVLossWatcher) Watch(event Event) {
	if event.Type != EventCasualties || event.Amount <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lost[event.Player] += event.Amount
}

// Reset implements Watcher.
func (w *TUVLossWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lost = make(map[string]int)
}

// Lost returns the TUV the player lost so far.
func (w *TUVLossWatcher) Lost(player string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lost[player]
}

// Players returns the players with losses, sorted.
func (w *TUVLossWatcher) Players() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.lost))
	for p := range w.lost {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// BattleCountWatcherKey is the registry key of the battle count watcher.
const BattleCountWatcherKey = "battle_count"

// BattleCountWatcher counts finished battles per territory this phase.
type BattleCountWatcher struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewBattleCountWatcher creates an empty watcher.
func NewBattleCountWatcher() *BattleCountWatcher {
	return &BattleCountWatcher{counts: make(map[string]int)}
}

// Key implements Watcher.
func (w *BattleCountWatcher) Key() string { return BattleCountWatcherKey }

// Watch implements Watcher.
func (w *BattleCountWatcher) Watch(event Event) {
	if event.Type != EventBattleEnded {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[event.Territory]++
}

// Reset implements Watcher.
func (w *BattleCountWatcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts = make(map[string]int)
}

// Count returns how many battles ended in the territory.
func (w *BattleCountWatcher) Count(territory string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[territory]
}
