package risk

// ReinforcementFor computes the army grant a player receives on entering
// their reinforce phase: max(3, territories/3) plus the bonus for every
// continent they fully control.
func ReinforcementFor(gs *GameState, m *WorldMap, player string) int {
	armies := gs.TerritoryCount(player) / 3
	if armies < 3 {
		armies = 3
	}
	for id, c := range m.Continents {
		if gs.ControlsContinent(m, player, id) {
			armies += c.Bonus
		}
	}
	return armies
}

// NextAlivePlayer returns the index of the next player in rotation order
// who still owns at least one territory, starting after from. Returns from
// itself if no other player is alive.
func NextAlivePlayer(gs *GameState, from int) int {
	n := len(gs.Players)
	for step := 1; step <= n; step++ {
		idx := (from + step) % n
		if gs.PlayerAlive(gs.Players[idx].Name) {
			return idx
		}
	}
	return from
}

// nextPlacementPlayer returns the index of the next player with a non-empty
// starting pool, starting after from, or -1 when every pool is exhausted.
func nextPlacementPlayer(gs *GameState, from int) int {
	n := len(gs.Players)
	for step := 1; step <= n; step++ {
		idx := (from + step) % n
		if gs.Pools[gs.Players[idx].Name] > 0 {
			return idx
		}
	}
	return -1
}

// startReinforce moves the game into the given player's reinforce phase,
// granting their reinforcement pool. This is the only place armies enter
// the game after initial placement.
func startReinforce(gs *GameState, m *WorldMap, playerIdx int) {
	gs.CurrentPlayer = playerIdx
	gs.Phase = PhaseReinforce
	gs.Pools[gs.Players[playerIdx].Name] = ReinforcementFor(gs, m, gs.Players[playerIdx].Name)
}

// advanceAfterPlacement rotates during initial placement: the next player
// with armies left places next; when all pools are empty the regular cycle
// begins with the first player's reinforce phase on turn 1.
func advanceAfterPlacement(gs *GameState, m *WorldMap) {
	next := nextPlacementPlayer(gs, gs.CurrentPlayer)
	if next >= 0 {
		gs.CurrentPlayer = next
		return
	}
	gs.Turn = 1
	startReinforce(gs, m, 0)
}

// advanceAfterFortify hands the turn to the next alive player. Wrapping
// past the last player in rotation order increments the turn counter.
func advanceAfterFortify(gs *GameState, m *WorldMap) {
	next := NextAlivePlayer(gs, gs.CurrentPlayer)
	if next <= gs.CurrentPlayer {
		gs.Turn++
	}
	startReinforce(gs, m, next)
}
