// Package display pushes battle notifications to whatever renders them.
package display

import (
	"sync"
	"time"

	"github.com/magefree/battle-server-go/internal/dice"
	"go.uber.org/zap"
)

// Notification types sent to clients.
const (
	TypeShowBattle       = "SHOW_BATTLE"
	TypeBattleSteps      = "BATTLE_STEPS"
	TypeGotoStep         = "GOTO_STEP"
	TypeCasualties       = "CASUALTIES"
	TypeDice             = "DICE"
	TypeRetreat          = "RETREAT"
	TypeBombingResults   = "BOMBING_RESULTS"
	TypeBattleEnd        = "BATTLE_END"
	TypeChangedUnits     = "CHANGED_UNITS"
	TypeBattleListChange = "BATTLE_LIST_CHANGED"
)

// Display is the observational sink for battle progress.
type Display interface {
	ShowBattle(battleID, territory, battleTitle string, attackers, defenders []string, attacker, defender string)
	ListBattleSteps(battleID string, steps []string)
	GotoBattleStep(battleID, step string)
	CasualtyNotification(battleID, step, player string, killed, damaged []string, autoCalculated bool)
	NotifyDice(battleID, step string, roll dice.Roll)
	NotifyRetreat(battleID, player string, units []string, to string)
	BombingResults(battleID string, dice []int, cost int)
	BattleEnd(battleID, message string)
	ChangedUnitsNotification(battleID, player string, removed, added []string)
}

// Notification is a message sent to UI or websocket clients.
type Notification struct {
	Type      string         `json:"type"`
	GameID    string         `json:"game_id"`
	BattleID  string         `json:"battle_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler receives notifications.
type Handler func(Notification)

// Broadcaster implements Display by turning every call into a Notification.
type Broadcaster struct {
	logger  *zap.Logger
	gameID  string
	mu      sync.RWMutex
	handler Handler
}

// NewBroadcaster creates a broadcaster for one game.
func NewBroadcaster(gameID string, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{gameID: gameID, logger: logger}
}

// SetHandler installs the notification handler.
func (b *Broadcaster) SetHandler(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// emit calls the handler synchronously so clients see steps in order.
func (b *Broadcaster) emit(kind, battleID string, data map[string]any) {
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()

	if b.logger != nil {
		b.logger.Debug("display notification",
			zap.String("game_id", b.gameID),
			zap.String("battle_id", battleID),
			zap.String("type", kind),
		)
	}
	if handler == nil {
		return
	}
	handler(Notification{
		Type:      kind,
		GameID:    b.gameID,
		BattleID:  battleID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// ShowBattle implements Display.
func (b *Broadcaster) ShowBattle(battleID, territory, battleTitle string, attackers, defenders []string, attacker, defender string) {
	b.emit(TypeShowBattle, battleID, map[string]any{
		"territory": territory,
		"title":     battleTitle,
		"attackers": attackers,
		"defenders": defenders,
		"attacker":  attacker,
		"defender":  defender,
	})
}

// ListBattleSteps implements Display.
func (b *Broadcaster) ListBattleSteps(battleID string, steps []string) {
	b.emit(TypeBattleSteps, battleID, map[string]any{"steps": steps})
}

// GotoBattleStep implements Display.
func (b *Broadcaster) GotoBattleStep(battleID, step string) {
	b.emit(TypeGotoStep, battleID, map[string]any{"step": step})
}

// CasualtyNotification implements Display.
func (b *Broadcaster) CasualtyNotification(battleID, step, player string, killed, damaged []string, autoCalculated bool) {
	b.emit(TypeCasualties, battleID, map[string]any{
		"step":            step,
		"player":          player,
		"killed":          killed,
		"damaged":         damaged,
		"auto_calculated": autoCalculated,
	})
}

// NotifyDice implements Display.
func (b *Broadcaster) NotifyDice(battleID, step string, roll dice.Roll) {
	values := make([]int, 0, len(roll.Dice))
	for _, d := range roll.Dice {
		values = append(values, d.Value)
	}
	b.emit(TypeDice, battleID, map[string]any{
		"step":   step,
		"player": roll.Player,
		"dice":   values,
		"hits":   roll.Hits,
	})
}

// NotifyRetreat implements Display.
func (b *Broadcaster) NotifyRetreat(battleID, player string, units []string, to string) {
	b.emit(TypeRetreat, battleID, map[string]any{"player": player, "units": units, "to": to})
}

// BombingResults implements Display.
func (b *Broadcaster) BombingResults(battleID string, dice []int, cost int) {
	b.emit(TypeBombingResults, battleID, map[string]any{"dice": dice, "cost": cost})
}

// BattleEnd implements Display.
func (b *Broadcaster) BattleEnd(battleID, message string) {
	b.emit(TypeBattleEnd, battleID, map[string]any{"message": message})
}

// ChangedUnitsNotification implements Display.
func (b *Broadcaster) ChangedUnitsNotification(battleID, player string, removed, added []string) {
	b.emit(TypeChangedUnits, battleID, map[string]any{"player": player, "removed": removed, "added": added})
}

// BattleListChanged tells clients which battles are still pending, keyed by battle type name.
func (b *Broadcaster) BattleListChanged(battles map[string][]string, current string) {
	b.emit(TypeBattleListChange, current, map[string]any{"battles": battles})
}

// Nop is a Display that ignores everything; headless battles use it.
type Nop struct{}

func (Nop) ShowBattle(string, string, string, []string, []string, string, string) {}
func (Nop) ListBattleSteps(string, []string)                                      {}
func (Nop) GotoBattleStep(string, string)                                         {}
func (Nop) CasualtyNotification(string, string, string, []string, []string, bool) {}
func (Nop) NotifyDice(string, string, dice.Roll)                                  {}
func (Nop) NotifyRetreat(string, string, []string, string)                        {}
func (Nop) BombingResults(string, []int, int)                                     {}
func (Nop) BattleEnd(string, string)                                              {}
func (Nop) ChangedUnitsNotification(string, string, []string, []string)           {}
