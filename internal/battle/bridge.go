package battle

import (
	"fmt"
	"sync"

	"github.com/magefree/battle-server-go/internal/dice"
	"github.com/magefree/battle-server-go/internal/display"
	"github.com/magefree/battle-server-go/internal/history"
	"github.com/magefree/battle-server-go/internal/world"
	"go.uber.org/zap"
)

// Bridge is the battle engine's only door to the rest of the game.
type Bridge interface {
	State() *world.State
	Rules() Rules
	Dice() dice.Source
	// Remote returns the registered remote of the player, or nil.
	Remote(player string) RemotePlayer
	History() history.Writer
	Display() display.Display
	Events() *history.EventBus
	AddChange(change world.Change) error
	EnterDelegateExecution()
	LeaveDelegateExecution()
	Logger() *zap.Logger
	// Player is the player whose combat phase this is.
	Player() string
}

// BridgeOptions configures a DelegateBridge. Nil collaborators get harmless defaults.
type BridgeOptions struct {
	State   *world.State
	Rules   Rules
	Dice    dice.Source
	History history.Writer
	Display display.Display
	Events  *history.EventBus
	Logger  *zap.Logger
	Player  string
}

// DelegateBridge is the in-process Bridge used by the delegate, the CLI and tests.
type DelegateBridge struct {
	mu      sync.Mutex
	opts    BridgeOptions
	remotes map[string]RemotePlayer
	changes []world.Change
	waiting int
}

// NewDelegateBridge creates a bridge over the given collaborators.
func NewDelegateBridge(opts BridgeOptions) *DelegateBridge {
	if opts.State == nil {
		opts.State = world.NewState()
	}
	if opts.Dice == nil {
		opts.Dice = dice.NewSeededSource(1)
	}
	if opts.History == nil {
		opts.History = history.Discard{}
	}
	if opts.Display == nil {
		opts.Display = display.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &DelegateBridge{opts: opts, remotes: make(map[string]RemotePlayer)}
}

// SetRemote registers the remote of a player.
func (b *DelegateBridge) SetRemote(player string, remote RemotePlayer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remotes[player] = remote
}

// SetPlayer switches the acting player.
func (b *DelegateBridge) SetPlayer(player string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.Player = player
}

// SetDice swaps the dice source, e.g. after a reconnect.
func (b *DelegateBridge) SetDice(src dice.Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.Dice = src
}

// State implements Bridge.
func (b *DelegateBridge) State() *world.State { return b.opts.State }

// Rules implements Bridge.
func (b *DelegateBridge) Rules() Rules { return b.opts.Rules }

// Dice implements Bridge.
func (b *DelegateBridge) Dice() dice.Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Dice
}

// Remote implements Bridge.
func (b *DelegateBridge) Remote(player string) RemotePlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remotes[player]
}

// History implements Bridge.
func (b *DelegateBridge) History() history.Writer { return b.opts.History }

// Display implements Bridge.
func (b *DelegateBridge) Display() display.Display { return b.opts.Display }

// Events implements Bridge.
func (b *DelegateBridge) Events() *history.EventBus { return b.opts.Events }

// Logger implements Bridge.
func (b *DelegateBridge) Logger() *zap.Logger { return b.opts.Logger }

// Player implements Bridge.
func (b *DelegateBridge) Player() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Player
}

// AddChange applies the change to the state and keeps it for the undo log.
func (b *DelegateBridge) AddChange(change world.Change) error {
	if change.IsEmpty() {
		return nil
	}
	if err := change.Apply(b.opts.State); err != nil {
		return fmt.Errorf("apply change %s: %w", change, err)
	}
	b.mu.Lock()
	b.changes = append(b.changes, change)
	b.mu.Unlock()
	return nil
}

// Changes returns every change applied through the bridge.
func (b *DelegateBridge) Changes() []world.Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]world.Change, len(b.changes))
	copy(out, b.changes)
	return out
}

// LeaveDelegateExecution implements Bridge.
func (b *DelegateBridge) LeaveDelegateExecution() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting++
}

// EnterDelegateExecution implements Bridge.
func (b *DelegateBridge) EnterDelegateExecution() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.waiting > 0 {
		b.waiting--
	}
}

// WaitingOnRemote reports whether a remote call is in flight.
func (b *DelegateBridge) WaitingOnRemote() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting > 0
}
