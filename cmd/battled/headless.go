package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/magefree/battle-server-go/internal/battle"
	"github.com/magefree/battle-server-go/internal/config"
	"github.com/magefree/battle-server-go/internal/server"
	"github.com/magefree/battle-server-go/internal/session"
	"go.uber.org/zap"
)

// runHeadless fights every battle of the configured map for cfg.Game.Player with the built-in AI
// on both sides, then prints the history.
func runHeadless(ctx context.Context, cfg *config.Config, loadMap server.MapLoader, logger *zap.Logger) error {
	if cfg.Game.Player == "" {
		return errors.New("game.player is required in headless mode")
	}
	st, err := loadMap()
	if err != nil {
		return fmt.Errorf("load map %s: %w", cfg.Game.MapPath, err)
	}

	mgr := session.NewManager(session.Options{Rules: cfg.Rules, DiceSeed: cfg.Game.DiceSeed}, logger)
	g, err := mgr.CreateGame(st, cfg.Game.Player)
	if err != nil {
		return err
	}
	if err := mgr.StartCombat(ctx, g.ID); err != nil {
		return fmt.Errorf("start combat: %w", err)
	}

	for {
		pending := g.Snapshot().Battles
		if len(pending) == 0 {
			break
		}
		fought, err := fightNext(ctx, mgr, g.ID, pending)
		if err != nil {
			return err
		}
		if !fought {
			return fmt.Errorf("no pending battle can be fought: %v", pending)
		}
	}

	// watchers reset with the phase
	lost := g.Snapshot().TUVLost
	if err := mgr.EndCombat(ctx, g.ID); err != nil {
		return fmt.Errorf("end combat: %w", err)
	}

	fmt.Fprint(os.Stdout, g.Transcript())
	for _, p := range sortedKeys(lost) {
		fmt.Fprintf(os.Stdout, "%s lost %d TUV\n", p, lost[p])
	}
	return nil
}

// fightNext fights the first battle that is not blocked, bombing runs first.
func fightNext(ctx context.Context, mgr *session.Manager, gameID string, pending map[string][]string) (bool, error) {
	for _, typ := range []battle.BattleType{battle.TypeAirRaid, battle.TypeBombingRaid, battle.TypeAirBattle, battle.TypeNormal} {
		for _, territory := range pending[typ.String()] {
			msg, err := mgr.FightBattle(ctx, gameID, territory, typ.IsBombingRun(), typ)
			if err != nil {
				return false, fmt.Errorf("%s in %s: %w", typ, territory, err)
			}
			if msg == "" {
				return true, nil
			}
		}
	}
	return false, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
