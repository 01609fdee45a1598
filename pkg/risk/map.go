package risk

// TerritoryCount is the number of territories on the standard world map.
const TerritoryCount = 42

// Continent groups territories and carries the control bonus awarded to a
// player who owns every territory in the group.
type Continent struct {
	ID    string
	Name  string
	Bonus int
}

// Territory is a single territory on the world map.
type Territory struct {
	ID        string
	Name      string
	Continent string
}

// WorldMap holds the full territory and adjacency graph. It is static data:
// built once, never mutated, safe to share across sessions without locking.
type WorldMap struct {
	Territories map[string]*Territory
	Continents  map[string]*Continent
	Adjacencies map[string][]string // keyed by territory ID
	ids         []string            // stable catalog order
}

// TerritoryIDs returns all territory IDs in stable catalog order. The
// deterministic initializer shuffles a copy of this slice, so the order here
// is part of the seed contract and must not change.
func (m *WorldMap) TerritoryIDs() []string {
	ids := make([]string, len(m.ids))
	copy(ids, m.ids)
	return ids
}

// Exists returns true if the territory ID is on the map.
func (m *WorldMap) Exists(id string) bool {
	_, ok := m.Territories[id]
	return ok
}

// Adjacent returns true if the two territories share a border.
func (m *WorldMap) Adjacent(a, b string) bool {
	for _, n := range m.Adjacencies[a] {
		if n == b {
			return true
		}
	}
	return false
}

// Neighbors returns the territory IDs bordering the given territory.
func (m *WorldMap) Neighbors(id string) []string {
	return m.Adjacencies[id]
}

// ContinentOf returns the continent ID for a territory, or "" if unknown.
func (m *WorldMap) ContinentOf(id string) string {
	t, ok := m.Territories[id]
	if !ok {
		return ""
	}
	return t.Continent
}

// TerritoriesIn returns the IDs of all territories in a continent, in
// catalog order.
func (m *WorldMap) TerritoriesIn(continent string) []string {
	var ids []string
	for _, id := range m.ids {
		if m.Territories[id].Continent == continent {
			ids = append(ids, id)
		}
	}
	return ids
}
