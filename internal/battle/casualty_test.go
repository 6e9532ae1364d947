package battle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pickingRemote always answers casualty queries with the same selection.
type pickingRemote struct {
	WeakAI
	pick  CasualtyDetails
	asked int
}

func (r *pickingRemote) SelectCasualties(_ context.Context, _ CasualtyRequest) (CasualtyDetails, error) {
	r.asked++
	return r.pick, nil
}

type fleet struct {
	battleship string
	destroyers []string
	transport  string
}

func (f fleet) all() []string {
	return append(append([]string{f.battleship}, f.destroyers...), f.transport)
}

func placeFleet(h *battleHarness) fleet {
	return fleet{
		battleship: h.place("Sea Zone 26", "battleship", "Americans", 1)[0],
		destroyers: h.place("Sea Zone 26", "destroyer", "Americans", 2),
		transport:  h.place("Sea Zone 26", "transport", "Americans", 1)[0],
	}
}

func TestDefaultCasualties(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	f := placeFleet(h)

	one := defaultCasualties(h.st, f.all(), 1)
	assert.Empty(t, one.Killed)
	assert.Equal(t, []string{f.battleship}, one.Damaged, "the battleship soaks the first hit")

	two := defaultCasualties(h.st, f.all(), 2)
	assert.Equal(t, []string{f.transport}, two.Killed)
	assert.Equal(t, []string{f.battleship}, two.Damaged)

	three := defaultCasualties(h.st, f.all(), 3)
	assert.Equal(t, []string{f.transport, f.destroyers[0]}, three.Killed)

	all := defaultCasualties(h.st, f.all(), 9)
	assert.ElementsMatch(t, f.all(), all.Killed)
	assert.Empty(t, all.Damaged)

	assert.Equal(t, 5, totalHitPoints(h.st, f.all()))
	assert.True(t, defaultCasualties(h.st, f.all(), 0).IsEmpty())
}

func TestSelectCasualties_AsksOnlyWhenThereIsAChoice(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	f := placeFleet(h)
	r := &pickingRemote{pick: CasualtyDetails{Killed: []string{f.destroyers[1]}}}
	h.bridge.SetRemote("Americans", r)
	req := CasualtyRequest{Player: "Americans", Firer: "Japan", Targets: f.all(), Hits: 1}

	details, err := selectCasualties(h.ctx, h.bridge, false, req)
	require.NoError(t, err)
	assert.Equal(t, 1, r.asked)
	assert.False(t, details.AutoCalculated)
	assert.Equal(t, []string{f.destroyers[1]}, details.Killed)

	headless, err := selectCasualties(h.ctx, h.bridge, true, req)
	require.NoError(t, err)
	assert.Equal(t, 1, r.asked, "headless battles never ask")
	assert.True(t, headless.AutoCalculated)

	same := CasualtyRequest{Player: "Americans", Targets: f.destroyers, Hits: 1}
	details, err = selectCasualties(h.ctx, h.bridge, false, same)
	require.NoError(t, err)
	assert.Equal(t, 1, r.asked, "identical destroyers leave nothing to choose")
	assert.Equal(t, []string{f.destroyers[0]}, details.Killed)
}

func TestSelectCasualties_RejectsBadSelections(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	f := placeFleet(h)
	outsider := h.place("Sea Zone 26", "submarine", "Americans", 1)[0]
	req := CasualtyRequest{Player: "Americans", Targets: f.all(), Hits: 2}

	for name, pick := range map[string]CasualtyDetails{
		"too few":          {Killed: []string{f.transport}},
		"not a target":     {Killed: []string{f.transport, outsider}},
		"twice":            {Killed: []string{f.transport, f.transport}},
		"killed & damaged": {Killed: []string{f.battleship}, Damaged: []string{f.battleship}},
		"over damaged":     {Damaged: []string{f.battleship, f.battleship}},
	} {
		t.Run(name, func(t *testing.T) {
			h.bridge.SetRemote("Americans", &pickingRemote{pick: pick})
			_, err := selectCasualties(h.ctx, h.bridge, false, req)
			require.ErrorIs(t, err, ErrInvariant)
		})
	}
}

func TestSelectAACasualties(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Americans")
	bombers := h.place("Tokyo", "bomber", "Americans", 2)
	fighter := h.place("Tokyo", "fighter", "Americans", 1)
	targets := append(append([]string(nil), bombers...), fighter...)
	req := CasualtyRequest{Player: "Americans", Firer: "Japan", Targets: targets, Hits: 2}

	details, err := selectAACasualties(h.ctx, h.bridge, false, req)
	require.NoError(t, err)
	assert.True(t, details.AutoCalculated)
	assert.Equal(t, bombers, details.Killed)

	req.Hits = 5
	details, err = selectAACasualties(h.ctx, h.bridge, false, req)
	require.NoError(t, err)
	assert.Equal(t, targets, details.Killed)
}

func TestSelectAACasualties_PlayerChooses(t *testing.T) {
	rules := DefaultRules()
	rules.ChooseAACasualties = true
	h := newPacificHarness(t, rules, "Americans")
	bombers := h.place("Tokyo", "bomber", "Americans", 2)
	fighter := h.place("Tokyo", "fighter", "Americans", 1)
	targets := append(append([]string(nil), bombers...), fighter...)
	req := CasualtyRequest{Player: "Americans", Targets: targets, Hits: 1}

	r := &pickingRemote{pick: CasualtyDetails{Killed: fighter}}
	h.bridge.SetRemote("Americans", r)
	details, err := selectAACasualties(h.ctx, h.bridge, false, req)
	require.NoError(t, err)
	assert.Equal(t, fighter, details.Killed)
	assert.False(t, details.AutoCalculated)

	h.bridge.SetRemote("Americans", &pickingRemote{pick: CasualtyDetails{Killed: bombers}})
	_, err = selectAACasualties(h.ctx, h.bridge, false, req)
	require.ErrorIs(t, err, ErrInvariant)
}
