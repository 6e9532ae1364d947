// Package battle resolves combat between opposing forces: the pending battle registry and its
// dependency graph, the battle state machines, the resumable step stack they run on, and the
// phase driver that fights them in order.
package battle

import "sort"

// BattleType identifies the kind of a pending battle.
type BattleType int

const (
	TypeNormal BattleType = iota
	TypeAirBattle
	TypeAirRaid
	TypeBombingRaid
)

// String returns the battle type name used in messages and listings.
func (t BattleType) String() string {
	switch t {
	case TypeNormal:
		return "Battle"
	case TypeAirBattle:
		return "Air Battle"
	case TypeAirRaid:
		return "Air Raid"
	case TypeBombingRaid:
		return "Bombing Raid"
	default:
		return "Unknown"
	}
}

// IsBombingRun reports whether the type belongs to the bombing-only partition.
func (t BattleType) IsBombingRun() bool {
	return t == TypeAirRaid || t == TypeBombingRaid
}

// IsAirPreBattle reports whether the type is an air-to-air battle.
func (t BattleType) IsAirPreBattle() bool {
	return t == TypeAirBattle || t == TypeAirRaid
}

// ParseBattleType maps a listing name back to a type.
func ParseBattleType(s string) (BattleType, bool) {
	for _, t := range []BattleType{TypeNormal, TypeAirBattle, TypeAirRaid, TypeBombingRaid} {
		if t.String() == s {
			return t, true
		}
	}
	return TypeNormal, false
}

// WhoWon is the outcome of a battle.
type WhoWon int

const (
	NotFinished WhoWon = iota
	Draw
	Attacker
	Defender
)

// String returns the outcome name.
func (w WhoWon) String() string {
	switch w {
	case NotFinished:
		return "NOT_FINISHED"
	case Draw:
		return "DRAW"
	case Attacker:
		return "ATTACKER"
	case Defender:
		return "DEFENDER"
	default:
		return "UNKNOWN"
	}
}

// ResultDescription explains an outcome in battle records.
type ResultDescription int

const (
	ResultNone ResultDescription = iota
	ResultConquered
	ResultWonWithoutConquering
	ResultBlitzed
	ResultLost
	ResultStalemate
	ResultBombed
	ResultNoBattle
)

// String returns the description name.
func (r ResultDescription) String() string {
	switch r {
	case ResultConquered:
		return "CONQUERED"
	case ResultWonWithoutConquering:
		return "WON_WITHOUT_CONQUERING"
	case ResultBlitzed:
		return "BLITZED"
	case ResultLost:
		return "LOST"
	case ResultStalemate:
		return "STALEMATE"
	case ResultBombed:
		return "BOMBED"
	case ResultNoBattle:
		return "NO_BATTLE"
	default:
		return "NONE"
	}
}

// ParseResultDescription maps a description name back to its value.
func ParseResultDescription(s string) (ResultDescription, bool) {
	for r := ResultNone; r <= ResultNoBattle; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return ResultNone, false
}

// ReturnFire says which casualties of a first-strike volley may still fire back.
type ReturnFire int

const (
	// ReturnFireAll lets every casualty fire back before being removed.
	ReturnFireAll ReturnFire = iota
	// ReturnFireSubs lets only first-strike casualties fire back.
	ReturnFireSubs
	// ReturnFireNone removes casualties immediately.
	ReturnFireNone
)

// String returns the policy name.
func (r ReturnFire) String() string {
	switch r {
	case ReturnFireAll:
		return "ALL"
	case ReturnFireSubs:
		return "SUBS"
	case ReturnFireNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// BattleListing partitions the pending battle sites by type.
type BattleListing struct {
	Battles map[BattleType][]string
}

// IsEmpty reports whether nothing is pending.
func (l BattleListing) IsEmpty() bool {
	for _, ts := range l.Battles {
		if len(ts) > 0 {
			return false
		}
	}
	return true
}

// Territories returns the sorted sites of one type.
func (l BattleListing) Territories(t BattleType) []string {
	return l.Battles[t]
}

// BombingSites returns raid and air raid sites.
func (l BattleListing) BombingSites() []string {
	return mergeSorted(l.Battles[TypeAirRaid], l.Battles[TypeBombingRaid])
}

// NormalSites returns normal and air battle sites.
func (l BattleListing) NormalSites() []string {
	return mergeSorted(l.Battles[TypeNormal], l.Battles[TypeAirBattle])
}

// AsMap renders the listing with string keys for JSON and structpb.
func (l BattleListing) AsMap() map[string][]string {
	out := make(map[string][]string, len(l.Battles))
	for t, ts := range l.Battles {
		out[t.String()] = append([]string(nil), ts...)
	}
	return out
}

func mergeSorted(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
