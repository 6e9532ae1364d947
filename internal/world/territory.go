package world

// NullPlayer is the placeholder owner of neutral territory.
const NullPlayer = "Neutral"

// Resource names used by the battle engine.
const (
	ResourcePUs  = "PUs"
	ResourceFuel = "Fuel"
)

// Territory is a node in the map graph.
type Territory struct {
	Name          string
	Water         bool
	Owner         string
	OriginalOwner string
	Production    int
	CapitalOf     string
	Neighbors     []string
	Units         []string
}

// HasUnit reports whether the unit id is present in the territory.
func (t *Territory) HasUnit(id string) bool {
	for _, u := range t.Units {
		if u == id {
			return true
		}
	}
	return false
}

func (t *Territory) removeUnit(id string) bool {
	for i, u := range t.Units {
		if u == id {
			t.Units = append(t.Units[:i], t.Units[i+1:]...)
			return true
		}
	}
	return false
}

// Player is a side in the game.
type Player struct {
	Name      string
	Alliance  string
	Capital   string
	Resources map[string]int
}

// IsNull reports whether the name refers to the neutral placeholder player.
func IsNull(player string) bool {
	return player == "" || player == NullPlayer
}

// Route is an ordered path of territory names. A scripted route has a single territory.
type Route struct {
	Territories []string
}

// NewRoute builds a route from start through to the end.
func NewRoute(territories ...string) Route {
	ts := make([]string, len(territories))
	copy(ts, territories)
	return Route{Territories: ts}
}

// ScriptedRoute is a route that starts and ends in the same territory.
func ScriptedRoute(territory string) Route {
	return Route{Territories: []string{territory}}
}

// Start returns the first territory.
func (r Route) Start() string {
	if len(r.Territories) == 0 {
		return ""
	}
	return r.Territories[0]
}

// End returns the last territory.
func (r Route) End() string {
	if len(r.Territories) == 0 {
		return ""
	}
	return r.Territories[len(r.Territories)-1]
}

// Steps returns every territory after the start.
func (r Route) Steps() []string {
	if len(r.Territories) <= 1 {
		return nil
	}
	return r.Territories[1:]
}

// NumberOfSteps returns the number of moves along the route.
func (r Route) NumberOfSteps() int {
	if len(r.Territories) == 0 {
		return 0
	}
	return len(r.Territories) - 1
}

// TerritoryBeforeEnd returns the penultimate territory, or the start for scripted routes.
func (r Route) TerritoryBeforeEnd() string {
	if len(r.Territories) <= 1 {
		return r.Start()
	}
	return r.Territories[len(r.Territories)-2]
}

// HasExactlyOneStep reports whether the route is a single move.
func (r Route) HasExactlyOneStep() bool {
	return r.NumberOfSteps() == 1
}

// IsUnload reports whether the route moves from water onto land. The caller supplies the state
// because routes only carry names.
func (r Route) IsUnload(s *State) bool {
	if r.NumberOfSteps() == 0 {
		return false
	}
	start, end := s.Territories[r.Start()], s.Territories[r.End()]
	return start != nil && end != nil && start.Water && !end.Water
}
