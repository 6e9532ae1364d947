package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusSubscribeTyped(t *testing.T) {
	bus := NewEventBus()

	rolled, ended, all := 0, 0, 0
	h1 := bus.SubscribeTyped(EventDiceRolled, func(Event) { rolled++ })
	bus.SubscribeTyped(EventBattleEnded, func(Event) { ended++ })
	bus.Subscribe(func(Event) { all++ })

	bus.Publish(NewEvent(EventDiceRolled, "b1", "Tokyo", "Japan"))
	bus.Publish(NewEvent(EventBattleEnded, "b1", "Tokyo", "Japan"))
	assert.Equal(t, 1, rolled)
	assert.Equal(t, 1, ended)
	assert.Equal(t, 2, all)

	bus.Unsubscribe(h1)
	bus.Publish(NewEvent(EventDiceRolled, "b1", "Tokyo", "Japan"))
	assert.Equal(t, 1, rolled)
	assert.Equal(t, 3, all)

	assert.Equal(t, -1, bus.Subscribe(nil))
}

func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(NewEvent(EventRetreat, "", "", "")) })
}

func TestLogTranscript(t *testing.T) {
	bus := NewEventBus()
	var published []string
	bus.SubscribeTyped(EventHistoryNode, func(e Event) { published = append(published, e.Message) })

	log := NewLog(bus)
	log.AddChildToEvent("orphan", nil)
	log.StartEvent("Battle in Tokyo")
	log.AddChildToEvent("Japan rolls 2/1", []string{"u1"})

	nodes := log.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "orphan", nodes[0].Children[0].Text)
	assert.Equal(t, []string{"u1"}, nodes[1].Children[0].Units)
	assert.Equal(t, "\n  orphan\nBattle in Tokyo\n  Japan rolls 2/1\n", log.Transcript())
	assert.Equal(t, []string{"orphan", "Battle in Tokyo", "Japan rolls 2/1"}, published)
}

func TestTUVLossWatcher(t *testing.T) {
	bus := NewEventBus()
	registry := NewWatcherRegistry(bus)
	defer registry.Close()

	w := NewTUVLossWatcher()
	registry.AddWatcher(w)
	counter := NewBattleCountWatcher()
	registry.AddWatcher(counter)

	bus.Publish(NewEventWithAmount(EventCasualties, "b1", "Tokyo", "Japan", 6))
	bus.Publish(NewEventWithAmount(EventCasualties, "b1", "Tokyo", "Americans", 10))
	bus.Publish(NewEventWithAmount(EventCasualties, "b2", "Hawaii", "Japan", 3))
	bus.Publish(NewEventWithAmount(EventDiceRolled, "b2", "Hawaii", "Japan", 50))
	bus.Publish(NewEvent(EventBattleEnded, "b1", "Tokyo", "Japan"))

	assert.Equal(t, 9, w.Lost("Japan"))
	assert.Equal(t, 10, w.Lost("Americans"))
	assert.Equal(t, []string{"Americans", "Japan"}, w.Players())
	assert.Equal(t, 1, counter.Count("Tokyo"))
	assert.Same(t, w, registry.Watcher(TUVLossWatcherKey))

	registry.ResetWatchers()
	assert.Equal(t, 0, w.Lost("Japan"))
	assert.Equal(t, 0, counter.Count("Tokyo"))

	registry.Close()
	bus.Publish(NewEventWithAmount(EventCasualties, "b3", "Tokyo", "Japan", 6))
	assert.Equal(t, 0, w.Lost("Japan"))
}
