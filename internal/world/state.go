package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	// ErrUnknownUnit is returned when a unit id is not present in the state.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrUnknownTerritory is returned when a territory name is not on the map.
	ErrUnknownTerritory = errors.New("unknown territory")
	// ErrUnknownPlayer is returned when a player name is not in the game.
	ErrUnknownPlayer = errors.New("unknown player")
)

// State is the unit/territory graph the battle engine queries and mutates through changes.
type State struct {
	DiceSides   int
	UnitTypes   map[string]*UnitType
	Units       map[string]*Unit
	Territories map[string]*Territory
	Players     map[string]*Player
	PlayerOrder []string

	// PUsLost tracks bombing damage already taken per territory this turn.
	PUsLost map[string]int
}

// NewState returns an empty state using six sided dice.
func NewState() *State {
	return &State{
		DiceSides:   6,
		UnitTypes:   make(map[string]*UnitType),
		Units:       make(map[string]*Unit),
		Territories: make(map[string]*Territory),
		Players:     make(map[string]*Player),
		PUsLost:     make(map[string]int),
	}
}

// AddUnitType registers a unit type.
func (s *State) AddUnitType(ut *UnitType) {
	s.UnitTypes[ut.Name] = ut
}

// AddPlayer registers a player.
func (s *State) AddPlayer(p *Player) {
	if p.Resources == nil {
		p.Resources = make(map[string]int)
	}
	s.Players[p.Name] = p
	s.PlayerOrder = append(s.PlayerOrder, p.Name)
}

// AddTerritory registers a territory and links the neighbor edges in both directions.
func (s *State) AddTerritory(t *Territory) {
	if t.OriginalOwner == "" {
		t.OriginalOwner = t.Owner
	}
	s.Territories[t.Name] = t
	for _, n := range t.Neighbors {
		if other, ok := s.Territories[n]; ok && !contains(other.Neighbors, t.Name) {
			other.Neighbors = append(other.Neighbors, t.Name)
		}
	}
}

// CreateUnits places count new units of the type in the territory and returns their ids.
func (s *State) CreateUnits(territory, unitType, owner string, count int) ([]string, error) {
	t, ok := s.Territories[territory]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTerritory, territory)
	}
	ut, ok := s.UnitTypes[unitType]
	if !ok {
		return nil, fmt.Errorf("unknown unit type: %s", unitType)
	}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		u := &Unit{
			ID:               uuid.NewString(),
			Type:             unitType,
			Owner:            owner,
			MaxScrambleCount: ut.MaxScrambleCount,
		}
		s.Units[u.ID] = u
		t.Units = append(t.Units, u.ID)
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// Unit returns the unit with the id, or nil.
func (s *State) Unit(id string) *Unit {
	return s.Units[id]
}

// TypeOf returns the unit type of the unit id. Unknown ids yield an empty type.
func (s *State) TypeOf(id string) *UnitType {
	u := s.Units[id]
	if u == nil {
		return &UnitType{}
	}
	if ut := s.UnitTypes[u.Type]; ut != nil {
		return ut
	}
	return &UnitType{Name: u.Type}
}

// Territory returns the territory with the name, or nil.
func (s *State) Territory(name string) *Territory {
	return s.Territories[name]
}

// Player returns the player with the name, or nil.
func (s *State) Player(name string) *Player {
	return s.Players[name]
}

// OwnerOf returns the owner of the unit id.
func (s *State) OwnerOf(id string) string {
	if u := s.Units[id]; u != nil {
		return u.Owner
	}
	return ""
}

// Exists reports whether the unit is still on the map in the given territory.
func (s *State) Exists(id, territory string) bool {
	t := s.Territories[territory]
	return t != nil && s.Units[id] != nil && t.HasUnit(id)
}

// IsAllied reports whether the two players are on the same side.
func (s *State) IsAllied(a, b string) bool {
	if a == b {
		return true
	}
	if IsNull(a) || IsNull(b) {
		return false
	}
	pa, pb := s.Players[a], s.Players[b]
	if pa == nil || pb == nil {
		return false
	}
	return pa.Alliance != "" && pa.Alliance == pb.Alliance
}

// IsAtWar reports whether the two players fight each other. Neutral units are never at war.
func (s *State) IsAtWar(a, b string) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	return !s.IsAllied(a, b)
}

// Matches returns the ids in the territory accepted by the filter.
func (s *State) Matches(territory string, keep func(u *Unit, ut *UnitType) bool) []string {
	t := s.Territories[territory]
	if t == nil {
		return nil
	}
	return s.Filter(t.Units, keep)
}

// Filter returns the ids accepted by the filter, preserving order.
func (s *State) Filter(ids []string, keep func(u *Unit, ut *UnitType) bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		u := s.Units[id]
		if u == nil {
			continue
		}
		if keep(u, s.TypeOf(id)) {
			out = append(out, id)
		}
	}
	return out
}

// Any reports whether any id is accepted by the filter.
func (s *State) Any(ids []string, keep func(u *Unit, ut *UnitType) bool) bool {
	for _, id := range ids {
		u := s.Units[id]
		if u != nil && keep(u, s.TypeOf(id)) {
			return true
		}
	}
	return false
}

// All reports whether every id is accepted by the filter. Empty input yields true.
func (s *State) All(ids []string, keep func(u *Unit, ut *UnitType) bool) bool {
	for _, id := range ids {
		u := s.Units[id]
		if u == nil || !keep(u, s.TypeOf(id)) {
			return false
		}
	}
	return true
}

// EnemyUnits returns units in the territory owned by players at war with the player.
func (s *State) EnemyUnits(territory, player string) []string {
	return s.Matches(territory, func(u *Unit, _ *UnitType) bool {
		return s.IsAtWar(player, u.Owner)
	})
}

// HasEnemyUnits reports whether units at war with the player are in the territory.
func (s *State) HasEnemyUnits(territory, player string) bool {
	return len(s.EnemyUnits(territory, player)) > 0
}

// Neighbors returns the adjacent territories accepted by the filter (nil accepts all), sorted by name.
func (s *State) Neighbors(territory string, keep func(t *Territory) bool) []string {
	t := s.Territories[territory]
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.Neighbors))
	for _, n := range t.Neighbors {
		nt := s.Territories[n]
		if nt == nil {
			continue
		}
		if keep == nil || keep(nt) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// NeighborsWithin returns every territory within distance steps, excluding the origin.
func (s *State) NeighborsWithin(territory string, distance int) []string {
	dist := s.distances(territory, distance)
	out := make([]string, 0, len(dist))
	for name, d := range dist {
		if d > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Distance returns the number of steps between two territories, or -1 if unreachable.
func (s *State) Distance(from, to string) int {
	if from == to {
		return 0
	}
	dist := s.distances(from, len(s.Territories))
	if d, ok := dist[to]; ok {
		return d
	}
	return -1
}

func (s *State) distances(from string, limit int) map[string]int {
	dist := map[string]int{from: 0}
	frontier := []string{from}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if dist[cur] >= limit {
			continue
		}
		t := s.Territories[cur]
		if t == nil {
			continue
		}
		for _, n := range t.Neighbors {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			frontier = append(frontier, n)
		}
	}
	return dist
}

// TUV returns the summed cost of the units.
func (s *State) TUV(ids []string) int {
	total := 0
	for _, id := range ids {
		total += s.TypeOf(id).Cost
	}
	return total
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Locate returns the territory holding the unit, or "" when it is not on the map.
func (s *State) Locate(id string) string {
	names := make([]string, 0, len(s.Territories))
	for name := range s.Territories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.Territories[name].HasUnit(id) {
			return name
		}
	}
	return ""
}
