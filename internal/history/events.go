// Package history holds the append-only narration of a combat phase and the event bus that
// observers subscribe to.
package history

import (
	"sync"
	"time"
)

// EventType indicates the category of a battle event.
type EventType string

const (
	EventBattleStarted   EventType = "BATTLE_STARTED"
	EventRoundStarted    EventType = "ROUND_STARTED"
	EventDiceRolled      EventType = "DICE_ROLLED"
	EventCasualties      EventType = "CASUALTIES"
	EventUnitsDamaged    EventType = "UNITS_DAMAGED"
	EventRetreat         EventType = "RETREAT"
	EventSubmerge        EventType = "SUBMERGE"
	EventBombingDamage   EventType = "BOMBING_DAMAGE"
	EventInterceptors    EventType = "INTERCEPTORS_LAUNCHED"
	EventScramble        EventType = "SCRAMBLE"
	EventTerritoryTaken  EventType = "TERRITORY_TAKEN"
	EventBattleEnded     EventType = "BATTLE_ENDED"
	EventBattleCancelled EventType = "BATTLE_CANCELLED"
	EventHistoryNode     EventType = "HISTORY_NODE"
)

// Event is a single observation published by the battle engine.
type Event struct {
	Type      EventType
	BattleID  string
	Territory string
	Player    string
	Units     []string
	Amount    int
	Message   string
	Timestamp time.Time
	Metadata  map[string]string
}

// NewEvent creates an event with common fields populated.
func NewEvent(eventType EventType, battleID, territory, player string) Event {
	return Event{
		Type:      eventType,
		BattleID:  battleID,
		Territory: territory,
		Player:    player,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates an event carrying an amount.
func NewEventWithAmount(eventType EventType, battleID, territory, player string, amount int) Event {
	evt := NewEvent(eventType, battleID, territory, player)
	evt.Amount = amount
	return evt
}

// Listener receives every published event.
type Listener func(Event)

type typedListener struct {
	handle    int
	eventType EventType
	callback  func(Event)
}

// EventBus is a synchronous publish/subscribe hub with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]typedListener
	nextHandle     int
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]typedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for one event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], typedListener{
		handle:    handle,
		eventType: eventType,
		callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener with the handle, typed or not.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all matching listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	if bus == nil {
		return
	}
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.callback(event)
	}
}
