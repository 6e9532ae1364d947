package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MapDefinition is the YAML layout of a playable map.
type MapDefinition struct {
	Name        string             `yaml:"name"`
	DiceSides   int                `yaml:"dice_sides"`
	UnitTypes   []UnitType         `yaml:"unit_types"`
	Players     []PlayerDefinition `yaml:"players"`
	Territories []TerritoryDef     `yaml:"territories"`
	Units       []UnitPlacementDef `yaml:"units"`
}

// PlayerDefinition describes a player entry.
type PlayerDefinition struct {
	Name      string         `yaml:"name"`
	Alliance  string         `yaml:"alliance"`
	Capital   string         `yaml:"capital"`
	Resources map[string]int `yaml:"resources"`
}

// TerritoryDef describes a territory entry.
type TerritoryDef struct {
	Name       string   `yaml:"name"`
	Water      bool     `yaml:"water"`
	Owner      string   `yaml:"owner"`
	Production int      `yaml:"production"`
	CapitalOf  string   `yaml:"capital_of"`
	Neighbors  []string `yaml:"neighbors"`
}

// UnitPlacementDef places count units of a type.
type UnitPlacementDef struct {
	Type      string `yaml:"type"`
	Owner     string `yaml:"owner"`
	Territory string `yaml:"territory"`
	Count     int    `yaml:"count"`
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// LoadMap reads a map definition file and builds the initial state.
func LoadMap(path string) (*State, error) {
	var def MapDefinition
	if err := loadYAML(path, &def); err != nil {
		return nil, fmt.Errorf("load map %s: %w", path, err)
	}
	return def.Build()
}

// ParseMap builds a state from YAML bytes.
func ParseMap(data []byte) (*State, error) {
	var def MapDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	return def.Build()
}

// Build turns the definition into a state, validating references.
func (def *MapDefinition) Build() (*State, error) {
	s := NewState()
	if def.DiceSides > 0 {
		s.DiceSides = def.DiceSides
	}
	for i := range def.UnitTypes {
		ut := def.UnitTypes[i]
		if ut.Name == "" {
			return nil, fmt.Errorf("unit type %d has no name", i)
		}
		s.AddUnitType(&ut)
	}
	for _, pd := range def.Players {
		res := make(map[string]int, len(pd.Resources))
		for k, v := range pd.Resources {
			res[k] = v
		}
		s.AddPlayer(&Player{Name: pd.Name, Alliance: pd.Alliance, Capital: pd.Capital, Resources: res})
	}
	for _, td := range def.Territories {
		owner := td.Owner
		if owner == "" && !td.Water {
			owner = NullPlayer
		}
		s.AddTerritory(&Territory{
			Name:       td.Name,
			Water:      td.Water,
			Owner:      owner,
			Production: td.Production,
			CapitalOf:  td.CapitalOf,
			Neighbors:  append([]string(nil), td.Neighbors...),
		})
	}
	for name, t := range s.Territories {
		for _, n := range t.Neighbors {
			other := s.Territories[n]
			if other == nil {
				return nil, fmt.Errorf("territory %s: %w: neighbor %s", name, ErrUnknownTerritory, n)
			}
			// edges declared before the neighbor existed
			if !contains(other.Neighbors, name) {
				other.Neighbors = append(other.Neighbors, name)
			}
		}
	}
	for _, up := range def.Units {
		if up.Owner != "" && s.Players[up.Owner] == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, up.Owner)
		}
		count := up.Count
		if count == 0 {
			count = 1
		}
		if _, err := s.CreateUnits(up.Territory, up.Type, up.Owner, count); err != nil {
			return nil, err
		}
	}
	return s, nil
}
