package risk

import "fmt"

// startingArmies is the total starting pool per player by player count.
var startingArmies = map[int]int{
	2: 40,
	3: 35,
	4: 30,
	5: 25,
	6: 20,
}

// lcg is a 64-bit linear congruential generator (Knuth MMIX constants).
// The engine owns its generator rather than using math/rand because the
// exact stream is part of the session contract: any process replaying the
// same seed must reproduce the same board, across Go versions.
type lcg struct {
	state uint64
}

func newLCG(seed int64) *lcg {
	return &lcg{state: uint64(seed)}
}

func (r *lcg) next() uint64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return r.state
}

// intn returns a value in [0, n).
func (r *lcg) intn(n int) int {
	return int((r.next() >> 33) % uint64(n))
}

// shuffle performs a Fisher-Yates shuffle in place.
func (r *lcg) shuffle(ids []string) {
	for i := len(ids) - 1; i > 0; i-- {
		j := r.intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// NewGameFromSeed builds the reproducible starting position for the given
// ordered player list and seed: a seeded shuffle of the territory catalog,
// round-robin assignment, one army auto-placed per owned territory, and the
// remainder of the starting pool held back for initial placement.
//
// The function is pure: the same players and seed always produce the same
// state, which is what lets a reconnecting client rebuild the board from
// the seed alone.
func NewGameFromSeed(players []Player, seed int64) (*GameState, error) {
	pool, ok := startingArmies[len(players)]
	if !ok {
		return nil, fmt.Errorf("unsupported player count %d (want 2-6)", len(players))
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p.Name == "" {
			return nil, fmt.Errorf("player name must not be empty")
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate player name %q", p.Name)
		}
		seen[p.Name] = true
	}

	m := StandardMap()
	ids := m.TerritoryIDs()
	newLCG(seed).shuffle(ids)

	gs := &GameState{
		Territories:   make(map[string]TerritoryState, len(ids)),
		Players:       append([]Player(nil), players...),
		Phase:         PhaseInitialSetup,
		CurrentPlayer: 0,
		Turn:          0,
		Pools:         make(map[string]int, len(players)),
		Seed:          seed,
	}

	for i, id := range ids {
		owner := players[i%len(players)].Name
		gs.Territories[id] = TerritoryState{Owner: owner, Armies: 1}
	}
	for _, p := range players {
		gs.Pools[p.Name] = pool - gs.TerritoryCount(p.Name)
	}
	return gs, nil
}
