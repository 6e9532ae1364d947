package battle

import (
	"context"

	"github.com/magefree/battle-server-go/internal/world"
)

// CasualtyDetails is the outcome of one casualty selection.
type CasualtyDetails struct {
	Killed  []string
	Damaged []string
	// AutoCalculated is true when the engine chose because there was no real choice.
	AutoCalculated bool
}

// IsEmpty reports whether nothing was hit.
func (d CasualtyDetails) IsEmpty() bool {
	return len(d.Killed) == 0 && len(d.Damaged) == 0
}

// CasualtyRequest asks a player which of their units absorb hits.
type CasualtyRequest struct {
	BattleID  string
	Step      string
	Territory string
	Player    string
	// Firer is the player whose dice produced the hits.
	Firer   string
	Targets []string
	Hits    int
	// Defaults is the engine's suggestion; a player may simply return it.
	Defaults CasualtyDetails
	Message  string
}

// RetreatRequest asks the attacker (or a defender with submarines) where to go.
type RetreatRequest struct {
	BattleID string
	Player   string
	Site     string
	Units    []string
	Options  []string
	// Submerge means answering with the battle site submerges the units in place.
	Submerge bool
	Message  string
}

// ScrambleCandidates are the units at one origin that may scramble and the airbases that allow it.
type ScrambleCandidates struct {
	Airbases   []string
	Scramblers []string
}

// RemotePlayer is everything the battle engine asks a human or AI player. Any method may return
// an error wrapping ErrInterrupted to suspend the battle until the player is back.
type RemotePlayer interface {
	SelectCasualties(ctx context.Context, req CasualtyRequest) (CasualtyDetails, error)
	ConfirmOwnCasualties(ctx context.Context, battleID, message string) error
	ConfirmEnemyCasualties(ctx context.Context, battleID, message, hitPlayer string) error
	// RetreatQuery returns the chosen territory or "" for no retreat.
	RetreatQuery(ctx context.Context, req RetreatRequest) (string, error)
	SelectUnitsQuery(ctx context.Context, site string, candidates []string, max int, message string) ([]string, error)
	SelectBombingTarget(ctx context.Context, site, bomber string, targets []string) (string, error)
	// ScrambleUnitsQuery returns scramblers per origin; nil means no scramble.
	ScrambleUnitsQuery(ctx context.Context, to string, candidates map[string]ScrambleCandidates) (map[string][]string, error)
	SelectShoreBombard(ctx context.Context, site string, bombarders []string) ([]string, error)
	ReportError(message string)
	ReportMessage(message, title string)
}

// WeakAI answers every query with the cheapest legal choice. It stands in for the neutral player
// and for any player without a registered remote.
type WeakAI struct{}

// SelectCasualties accepts the default casualties.
func (WeakAI) SelectCasualties(_ context.Context, req CasualtyRequest) (CasualtyDetails, error) {
	return req.Defaults, nil
}

// ConfirmOwnCasualties does nothing.
func (WeakAI) ConfirmOwnCasualties(context.Context, string, string) error { return nil }

// ConfirmEnemyCasualties does nothing.
func (WeakAI) ConfirmEnemyCasualties(context.Context, string, string, string) error { return nil }

// RetreatQuery never retreats.
func (WeakAI) RetreatQuery(context.Context, RetreatRequest) (string, error) { return "", nil }

// SelectUnitsQuery launches every candidate up to max.
func (WeakAI) SelectUnitsQuery(_ context.Context, _ string, candidates []string, max int, _ string) ([]string, error) {
	if max >= 0 && len(candidates) > max {
		return append([]string(nil), candidates[:max]...), nil
	}
	return append([]string(nil), candidates...), nil
}

// SelectBombingTarget picks the first target.
func (WeakAI) SelectBombingTarget(_ context.Context, _, _ string, targets []string) (string, error) {
	if len(targets) == 0 {
		return "", nil
	}
	return targets[0], nil
}

// ScrambleUnitsQuery never scrambles.
func (WeakAI) ScrambleUnitsQuery(context.Context, string, map[string]ScrambleCandidates) (map[string][]string, error) {
	return nil, nil
}

// SelectShoreBombard bombards with everything offered.
func (WeakAI) SelectShoreBombard(_ context.Context, _ string, bombarders []string) ([]string, error) {
	return append([]string(nil), bombarders...), nil
}

// ReportError does nothing.
func (WeakAI) ReportError(string) {}

// ReportMessage does nothing.
func (WeakAI) ReportMessage(string, string) {}

// remoteFor picks the remote of a player, falling back to WeakAI for the neutral player.
func remoteFor(br Bridge, player string) RemotePlayer {
	if world.IsNull(player) {
		return WeakAI{}
	}
	if r := br.Remote(player); r != nil {
		return r
	}
	return WeakAI{}
}

// callRemote brackets a remote call so the delegate knows it is waiting on a player.
func callRemote(br Bridge, call func() error) error {
	br.LeaveDelegateExecution()
	defer br.EnterDelegateExecution()
	return call()
}
