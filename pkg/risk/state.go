package risk

// Phase is one stage of the turn cycle.
type Phase string

const (
	// PhaseInitialSetup covers the window between session creation and all
	// declared players announcing their connections. No game actions are
	// legal yet.
	PhaseInitialSetup Phase = "initial_setup"
	// PhaseInitialPlacement is the one-time round where players place their
	// starting pools, rotating after every placement.
	PhaseInitialPlacement Phase = "initial_placement"
	PhaseReinforce        Phase = "reinforce"
	PhaseAttack           Phase = "attack"
	PhaseFortify          Phase = "fortify"
	PhaseFinished         Phase = "finished"
)

// Player is a participant in a session. Order in GameState.Players defines
// turn rotation and is immutable once the game starts.
type Player struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TerritoryState is the mutable per-territory state: who owns it and with
// how many armies. Armies is >= 1 for owned territories, 0 only transiently
// while a conquest awaits its occupying transfer.
type TerritoryState struct {
	Owner  string `json:"owner"`
	Armies int    `json:"armies"`
}

// GameState is the complete, serializable snapshot of one session's board.
// It is the single authoritative copy; all mutation goes through Apply.
type GameState struct {
	Territories   map[string]TerritoryState `json:"territories"`
	Players       []Player                  `json:"players"`
	Phase         Phase                     `json:"phase"`
	CurrentPlayer int                       `json:"current_player"`
	Turn          int                       `json:"turn"`
	Pools         map[string]int            `json:"pools"`
	Seed          int64                     `json:"seed"`
}

// Clone returns a deep copy of the GameState. Apply works on a clone so a
// rejected action can never leave a partially mutated state behind.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		Phase:         gs.Phase,
		CurrentPlayer: gs.CurrentPlayer,
		Turn:          gs.Turn,
		Seed:          gs.Seed,
	}
	if gs.Territories != nil {
		c.Territories = make(map[string]TerritoryState, len(gs.Territories))
		for k, v := range gs.Territories {
			c.Territories[k] = v
		}
	}
	if gs.Players != nil {
		c.Players = make([]Player, len(gs.Players))
		copy(c.Players, gs.Players)
	}
	if gs.Pools != nil {
		c.Pools = make(map[string]int, len(gs.Pools))
		for k, v := range gs.Pools {
			c.Pools[k] = v
		}
	}
	return c
}

// CurrentPlayerName returns the name of the player whose turn it is.
func (gs *GameState) CurrentPlayerName() string {
	if gs.CurrentPlayer < 0 || gs.CurrentPlayer >= len(gs.Players) {
		return ""
	}
	return gs.Players[gs.CurrentPlayer].Name
}

// HasPlayer returns true if the named player is part of the session.
func (gs *GameState) HasPlayer(name string) bool {
	for _, p := range gs.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// TerritoryCount returns the number of territories owned by the player.
func (gs *GameState) TerritoryCount(player string) int {
	count := 0
	for _, t := range gs.Territories {
		if t.Owner == player {
			count++
		}
	}
	return count
}

// OwnedBy returns the IDs of all territories owned by the player, in
// catalog order.
func (gs *GameState) OwnedBy(m *WorldMap, player string) []string {
	var ids []string
	for _, id := range m.ids {
		if gs.Territories[id].Owner == player {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalArmies returns the sum of armies on the board plus all pending
// reinforcement pools. Conserved across every action except the grant at
// the start of a reinforce phase.
func (gs *GameState) TotalArmies() int {
	total := 0
	for _, t := range gs.Territories {
		total += t.Armies
	}
	for _, pool := range gs.Pools {
		total += pool
	}
	return total
}

// PlayerAlive returns true if the player still owns at least one territory.
func (gs *GameState) PlayerAlive(player string) bool {
	return gs.TerritoryCount(player) > 0
}

// Winner returns the player owning every territory, if any.
func (gs *GameState) Winner() (string, bool) {
	owner := ""
	for _, t := range gs.Territories {
		if owner == "" {
			owner = t.Owner
		} else if t.Owner != owner {
			return "", false
		}
	}
	if owner == "" {
		return "", false
	}
	return owner, true
}

// ControlsContinent returns true if the player owns every territory in the
// continent.
func (gs *GameState) ControlsContinent(m *WorldMap, player, continent string) bool {
	ids := m.TerritoriesIn(continent)
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if gs.Territories[id].Owner != player {
			return false
		}
	}
	return true
}
