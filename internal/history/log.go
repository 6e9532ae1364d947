package history

import (
	"strings"
	"sync"
	"time"
)

// Writer is the narration sink the battle engine appends to.
type Writer interface {
	StartEvent(text string)
	AddChildToEvent(text string, units []string)
}

// Child is a detail line under a history node.
type Child struct {
	Text  string
	Units []string
}

// Node is one top level history entry.
type Node struct {
	Text      string
	Timestamp time.Time
	Children  []Child
}

// Log is an in-memory Writer. When a bus is attached every node is also published as
// EventHistoryNode so UIs can follow along.
type Log struct {
	mu    sync.Mutex
	nodes []Node
	bus   *EventBus
}

// NewLog creates an empty log publishing to bus (which may be nil).
func NewLog(bus *EventBus) *Log {
	return &Log{bus: bus}
}

// StartEvent opens a new top level node.
func (l *Log) StartEvent(text string) {
	l.mu.Lock()
	l.nodes = append(l.nodes, Node{Text: text, Timestamp: time.Now()})
	l.mu.Unlock()

	evt := NewEvent(EventHistoryNode, "", "", "")
	evt.Message = text
	l.bus.Publish(evt)
}

// AddChildToEvent attaches a detail line to the latest node, opening one if needed.
func (l *Log) AddChildToEvent(text string, units []string) {
	l.mu.Lock()
	if len(l.nodes) == 0 {
		l.nodes = append(l.nodes, Node{Timestamp: time.Now()})
	}
	last := &l.nodes[len(l.nodes)-1]
	last.Children = append(last.Children, Child{Text: text, Units: append([]string(nil), units...)})
	l.mu.Unlock()

	evt := NewEvent(EventHistoryNode, "", "", "")
	evt.Message = text
	evt.Units = units
	evt.Metadata["child"] = "true"
	l.bus.Publish(evt)
}

// Nodes returns a copy of the recorded nodes.
func (l *Log) Nodes() []Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Node, len(l.nodes))
	copy(out, l.nodes)
	return out
}

// Transcript renders the log as indented text.
func (l *Log) Transcript() string {
	var b strings.Builder
	for _, n := range l.Nodes() {
		b.WriteString(n.Text)
		b.WriteByte('\n')
		for _, c := range n.Children {
			b.WriteString("  ")
			b.WriteString(c.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Discard is a Writer that drops everything.
type Discard struct{}

// StartEvent implements Writer.
func (Discard) StartEvent(string) {}

// AddChildToEvent implements Writer.
func (Discard) AddChildToEvent(string, []string) {}
