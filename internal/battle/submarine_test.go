package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubReturnFire(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	subs := h.place("Sea Zone 26", "submarine", "Japan", 1)
	escorted := append(h.place("Sea Zone 26", "destroyer", "Japan", 1), subs...)
	enemySubs := h.place("Sea Zone 26", "submarine", "Americans", 1)
	enemyEscorted := append(h.place("Sea Zone 26", "destroyer", "Americans", 1), enemySubs...)

	tests := []struct {
		name                               string
		ww2v2, sneakAttack                 bool
		attackers, defenders               []string
		againstAttacking, againstDefending ReturnFire
	}{
		{"no destroyers", false, false, subs, enemySubs, ReturnFireNone, ReturnFireAll},
		{"defending destroyer", false, false, subs, enemyEscorted, ReturnFireAll, ReturnFireAll},
		{"ww2v2 without destroyers", true, false, subs, enemySubs, ReturnFireSubs, ReturnFireSubs},
		{"ww2v2 with attacking destroyer", true, false, escorted, enemySubs, ReturnFireSubs, ReturnFireAll},
		{"defending subs sneak attack", false, true, subs, enemyEscorted, ReturnFireAll, ReturnFireNone},
		{"sneak attack blocked by attacking destroyer", false, true, escorted, enemySubs, ReturnFireNone, ReturnFireAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultRules()
			rules.WW2V2 = tt.ww2v2
			rules.DefendingSubsSneakAttack = tt.sneakAttack
			againstAttacking, againstDefending := subReturnFire(h.st, rules, tt.attackers, tt.defenders)
			assert.Equal(t, tt.againstAttacking, againstAttacking)
			assert.Equal(t, tt.againstDefending, againstDefending)
		})
	}
}

func TestMustFight_SubmarineVolleyOrder(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	sub := h.place("Sea Zone 26", "submarine", "Japan", 1)
	h.place("Sea Zone 26", "submarine", "Americans", 1)
	h.place("Sea Zone 26", "destroyer", "Americans", 1)
	h.attack("Japan", sub, false, "Sea Zone 6", "Sea Zone 26")
	b := h.pending("Sea Zone 26", TypeNormal).(*MustFightBattle)

	tests := []struct {
		name  string
		rules func(*Rules)
		want  []string
	}{
		{"classic", func(*Rules) {}, []string{"Japan subs fire", "Japan fire", "Americans subs fire", "Americans fire"}},
		{"defending subs strike first", func(r *Rules) { r.DefendingSubsSneakAttack = true }, []string{"Americans subs fire", "Japan subs fire", "Japan fire", "Americans fire"}},
		{"ww2v2", func(r *Rules) { r.WW2V2 = true }, []string{"Japan subs fire", "Americans subs fire", "Japan fire", "Americans fire"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultRules()
			tt.rules(&rules)
			var names []string
			for _, step := range b.fireSteps(h.st, rules) {
				names = append(names, step.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestMustFight_SneakAttackSinksBeforeReturnFire(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	sub := h.place("Sea Zone 26", "submarine", "Japan", 1)
	target := h.place("Sea Zone 26", "submarine", "Americans", 1)
	h.attack("Japan", sub, false, "Sea Zone 6", "Sea Zone 26")
	b := h.pending("Sea Zone 26", TypeNormal)

	h.dice.Add(0)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, Attacker, b.WhoWon())
	assert.Equal(t, 1, h.dice.Calls(), "the sunk submarine never rolls")
	assert.False(t, h.st.Exists(target[0], "Sea Zone 26"))
	assert.True(t, h.st.Exists(sub[0], "Sea Zone 26"))
}

func TestMustFight_DestroyerFiresBackAtSubmarine(t *testing.T) {
	h := newPacificHarness(t, DefaultRules(), "Japan")
	sub := h.place("Sea Zone 26", "submarine", "Japan", 1)
	destroyer := h.place("Sea Zone 26", "destroyer", "Americans", 1)
	h.attack("Japan", sub, false, "Sea Zone 6", "Sea Zone 26")
	b := h.pending("Sea Zone 26", TypeNormal)

	h.dice.Add(0, 0)
	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 2, h.dice.Calls())
	assert.False(t, h.st.Exists(sub[0], "Sea Zone 26"))
	assert.False(t, h.st.Exists(destroyer[0], "Sea Zone 26"))
	assert.Equal(t, Defender, b.WhoWon())
	rec := h.record(b)
	assert.Equal(t, 6, rec.AttackerLostTUV)
	assert.Equal(t, 8, rec.DefenderLostTUV)
}

func TestMustFight_AttackingSubmarineSubmerges(t *testing.T) {
	rules := DefaultRules()
	rules.SubmersibleSubs = true
	rules.SubRetreatBeforeBattle = true
	h := newPacificHarness(t, rules, "Japan")
	sub := h.place("Sea Zone 26", "submarine", "Japan", 1)
	h.place("Sea Zone 26", "battleship", "Americans", 1)
	h.attack("Japan", sub, false, "Sea Zone 6", "Sea Zone 26")
	b := h.pending("Sea Zone 26", TypeNormal)
	r := h.remote("Japan")
	r.retreat = "Sea Zone 26"

	require.NoError(t, b.Fight(h.ctx, h.bridge))

	assert.Equal(t, 1, r.timesAsked("retreat"))
	assert.Equal(t, 0, h.dice.Calls())
	assert.True(t, h.st.Exists(sub[0], "Sea Zone 26"))
	assert.True(t, h.st.Unit(sub[0]).Submerged)
	assert.Empty(t, b.AttackingUnits())
	assert.Contains(t, h.log.Transcript(), "Japan submerges")
}
