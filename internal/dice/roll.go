package dice

import (
	"context"
	"fmt"
	"strings"
)

// DieType classifies a rolled die.
type DieType int

const (
	Miss DieType = iota
	Hit
	Ignored
)

// String returns the die type name.
func (t DieType) String() string {
	switch t {
	case Miss:
		return "MISS"
	case Hit:
		return "HIT"
	case Ignored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

// Die is one rolled value and the strength it was rolled against.
type Die struct {
	Value    int
	RolledAt int
	Type     DieType
}

// Roll is the result of one fire step.
type Roll struct {
	Dice       []Die
	Hits       int
	Player     string
	Annotation string
}

// String renders the dice for history lines, e.g. "1/2 2/2 hits: 1".
func (r Roll) String() string {
	parts := make([]string, 0, len(r.Dice))
	for _, d := range r.Dice {
		parts = append(parts, fmt.Sprintf("%d/%d", d.Value+1, d.RolledAt))
	}
	return fmt.Sprintf("%s hits: %d", strings.Join(parts, " "), r.Hits)
}

// Power is the strength one unit fires at and how many dice it throws.
type Power struct {
	Strength int
	Rolls    int
}

// TotalPower sums strength times rolls.
func TotalPower(powers []Power) int {
	total := 0
	for _, p := range powers {
		if p.Strength > 0 && p.Rolls > 0 {
			total += p.Strength * p.Rolls
		}
	}
	return total
}

// RollBattle throws dice for a group of units. A die is a hit when its zero-based value is below
// the strength it was rolled at. With lowLuck the total power is divided by the die sides for
// guaranteed hits and only the remainder is rolled with a single die.
func RollBattle(ctx context.Context, src Source, sides int, powers []Power, lowLuck bool, player string, category Category, annotation string) (Roll, error) {
	r := Roll{Player: player, Annotation: annotation}
	if lowLuck {
		total := TotalPower(powers)
		r.Hits = total / sides
		if rem := total % sides; rem > 0 {
			vals, err := src.Roll(ctx, sides, 1, player, category, annotation)
			if err != nil {
				return Roll{}, err
			}
			d := Die{Value: vals[0], RolledAt: rem, Type: Miss}
			if vals[0] < rem {
				d.Type = Hit
				r.Hits++
			}
			r.Dice = append(r.Dice, d)
		}
		return r, nil
	}

	count := 0
	for _, p := range powers {
		if p.Rolls > 0 {
			count += p.Rolls
		}
	}
	if count == 0 {
		return r, nil
	}
	vals, err := src.Roll(ctx, sides, count, player, category, annotation)
	if err != nil {
		return Roll{}, err
	}
	i := 0
	for _, p := range powers {
		for n := 0; n < p.Rolls; n++ {
			d := Die{Value: vals[i], RolledAt: p.Strength, Type: Miss}
			if p.Strength <= 0 {
				d.Type = Ignored
			} else if vals[i] < p.Strength {
				d.Type = Hit
				r.Hits++
			}
			r.Dice = append(r.Dice, d)
			i++
		}
	}
	return r, nil
}
