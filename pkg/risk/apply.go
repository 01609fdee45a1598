package risk

// Apply validates an action against the current state and, if legal,
// returns the resulting state and a description of what changed. The input
// state is never mutated; on rejection the returned error is a *Rejection
// and both other results are nil.
//
// Checks run in a fixed order and the first failure wins: turn ownership,
// then entity existence, then the action-specific rules. Authorization
// (does the submitting connection control a.Player) is the registry's job
// and happens before Apply is called.
func Apply(gs *GameState, m *WorldMap, a Action) (*GameState, *Change, error) {
	if gs.Phase == PhaseInitialSetup {
		return nil, nil, reject(CodeInvalidPhaseTransition, "waiting for all players to join")
	}
	if gs.Phase == PhaseFinished {
		return nil, nil, reject(CodeInvalidPhaseTransition, "game is finished")
	}
	if a.Player != gs.CurrentPlayerName() {
		return nil, nil, reject(CodeNotYourTurn, "it is %s's turn", gs.CurrentPlayerName())
	}

	next := gs.Clone()
	var change *Change
	var err error
	switch a.Type {
	case ActionDeploy:
		change, err = applyDeploy(next, m, a)
	case ActionAttack:
		change, err = applyAttack(next, m, a)
	case ActionFortify:
		change, err = applyFortify(next, m, a)
	case ActionAdvancePhase:
		change, err = applyAdvancePhase(next, m, a)
	default:
		err = reject(CodeUnknownAction, "unknown action type %q", a.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	change.CurrentPlayer = next.CurrentPlayerName()
	change.Turn = next.Turn
	if next.Phase != gs.Phase || next.CurrentPlayer != gs.CurrentPlayer {
		change.PhaseChanged = true
		change.OldPhase = gs.Phase
		change.NewPhase = next.Phase
	}
	return next, change, nil
}

func applyDeploy(gs *GameState, m *WorldMap, a Action) (*Change, error) {
	if gs.Phase != PhaseInitialPlacement && gs.Phase != PhaseReinforce {
		return nil, reject(CodeInvalidPhaseTransition, "cannot deploy during %s", gs.Phase)
	}
	t, ok := gs.Territories[a.Territory]
	if !ok {
		return nil, reject(CodeTerritoryNotFound, "no territory %q", a.Territory)
	}
	if t.Owner != a.Player {
		return nil, reject(CodeNotOwner, "%s does not own %s", a.Player, a.Territory)
	}
	if a.Armies <= 0 {
		return nil, reject(CodeInsufficientArmies, "deploy count must be positive")
	}
	if pool := gs.Pools[a.Player]; a.Armies > pool {
		return nil, reject(CodeInsufficientArmies, "deploy of %d exceeds pool of %d", a.Armies, pool)
	}

	t.Armies += a.Armies
	gs.Territories[a.Territory] = t
	gs.Pools[a.Player] -= a.Armies

	if gs.Phase == PhaseInitialPlacement {
		advanceAfterPlacement(gs, m)
	}
	return &Change{
		Type:          ActionDeploy,
		Player:        a.Player,
		Territories:   []TerritoryDelta{{ID: a.Territory, Owner: t.Owner, Armies: t.Armies}},
		PoolRemaining: gs.Pools[a.Player],
	}, nil
}

func applyAttack(gs *GameState, m *WorldMap, a Action) (*Change, error) {
	if gs.Phase != PhaseAttack {
		return nil, reject(CodeInvalidPhaseTransition, "cannot attack during %s", gs.Phase)
	}
	src, ok := gs.Territories[a.Source]
	if !ok {
		return nil, reject(CodeTerritoryNotFound, "no territory %q", a.Source)
	}
	dst, ok := gs.Territories[a.Target]
	if !ok {
		return nil, reject(CodeTerritoryNotFound, "no territory %q", a.Target)
	}
	if src.Owner != a.Player {
		return nil, reject(CodeNotOwner, "%s does not own %s", a.Player, a.Source)
	}
	if dst.Owner == a.Player {
		return nil, reject(CodeNotOwner, "%s already owns %s", a.Player, a.Target)
	}
	if !m.Adjacent(a.Source, a.Target) {
		return nil, reject(CodeNotAdjacent, "%s does not border %s", a.Source, a.Target)
	}
	if src.Armies < 2 {
		return nil, reject(CodeInsufficientArmies, "attacking from %s requires at least 2 armies", a.Source)
	}
	// Battle outcomes are supplied by the client; the server only enforces
	// that army counts never go up and stay within legal bounds.
	if a.AttackerAfter > src.Armies || a.DefenderAfter > dst.Armies {
		return nil, reject(CodeArmiesIncreased, "post-battle counts exceed pre-battle counts")
	}
	if a.AttackerAfter < 1 {
		return nil, reject(CodeInsufficientArmies, "attacker must retain at least 1 army")
	}
	if a.DefenderAfter < 0 {
		return nil, reject(CodeInsufficientArmies, "defender count cannot be negative")
	}
	// A conquest leaves the target at 0 armies until the attacker moves in,
	// and the occupying transfer must leave 1 army behind. An attacker down
	// to a single army could never occupy, wedging the phase.
	if a.DefenderAfter == 0 && a.AttackerAfter < 2 {
		return nil, reject(CodeInsufficientArmies, "conquest requires an army free to occupy")
	}

	defender := dst.Owner
	src.Armies = a.AttackerAfter
	dst.Armies = a.DefenderAfter
	conquest := a.DefenderAfter == 0
	if conquest {
		// Ownership transfers immediately; the territory holds 0 armies
		// until the attacker moves in with an occupying transfer.
		dst.Owner = a.Player
	}
	gs.Territories[a.Source] = src
	gs.Territories[a.Target] = dst

	change := &Change{
		Type:   ActionAttack,
		Player: a.Player,
		Territories: []TerritoryDelta{
			{ID: a.Source, Owner: src.Owner, Armies: src.Armies},
			{ID: a.Target, Owner: dst.Owner, Armies: dst.Armies},
		},
		PoolRemaining: gs.Pools[a.Player],
		Conquest:      conquest,
	}
	if conquest && !gs.PlayerAlive(defender) {
		change.Eliminated = defender
		delete(gs.Pools, defender)
	}
	if winner, ok := gs.Winner(); ok {
		gs.Phase = PhaseFinished
		change.Winner = winner
	}
	return change, nil
}

func applyFortify(gs *GameState, m *WorldMap, a Action) (*Change, error) {
	occupying := gs.Phase == PhaseAttack
	if gs.Phase != PhaseFortify && !occupying {
		return nil, reject(CodeInvalidPhaseTransition, "cannot fortify during %s", gs.Phase)
	}
	src, ok := gs.Territories[a.Source]
	if !ok {
		return nil, reject(CodeTerritoryNotFound, "no territory %q", a.Source)
	}
	dst, ok := gs.Territories[a.Target]
	if !ok {
		return nil, reject(CodeTerritoryNotFound, "no territory %q", a.Target)
	}
	if src.Owner != a.Player {
		return nil, reject(CodeNotOwner, "%s does not own %s", a.Player, a.Source)
	}
	if dst.Owner != a.Player {
		return nil, reject(CodeNotOwner, "%s does not own %s", a.Player, a.Target)
	}
	if occupying {
		// During the attack phase a transfer is only the occupation of a
		// just-conquered, still-empty territory.
		if dst.Armies != 0 {
			return nil, reject(CodeInvalidPhaseTransition, "cannot fortify during %s", gs.Phase)
		}
		if !m.Adjacent(a.Source, a.Target) {
			return nil, reject(CodeNotAdjacent, "%s does not border %s", a.Source, a.Target)
		}
	} else if !connected(gs, m, a.Player, a.Source, a.Target) {
		return nil, reject(CodeNotAdjacent, "%s is not connected to %s through owned territory", a.Source, a.Target)
	}
	if a.Armies <= 0 {
		return nil, reject(CodeInsufficientArmies, "transfer count must be positive")
	}
	if src.Armies-a.Armies < 1 {
		return nil, reject(CodeInsufficientArmies, "source must retain at least 1 army")
	}

	src.Armies -= a.Armies
	dst.Armies += a.Armies
	gs.Territories[a.Source] = src
	gs.Territories[a.Target] = dst

	return &Change{
		Type:   ActionFortify,
		Player: a.Player,
		Territories: []TerritoryDelta{
			{ID: a.Source, Owner: src.Owner, Armies: src.Armies},
			{ID: a.Target, Owner: dst.Owner, Armies: dst.Armies},
		},
		PoolRemaining: gs.Pools[a.Player],
	}, nil
}

func applyAdvancePhase(gs *GameState, m *WorldMap, a Action) (*Change, error) {
	switch gs.Phase {
	case PhaseReinforce:
		if gs.Pools[a.Player] > 0 {
			return nil, reject(CodePhaseRequirementUnmet, "%d reinforcements still undeployed", gs.Pools[a.Player])
		}
		gs.Phase = PhaseAttack
	case PhaseAttack:
		for id, t := range gs.Territories {
			if t.Armies == 0 {
				return nil, reject(CodePhaseRequirementUnmet, "conquered territory %s must be occupied", id)
			}
		}
		gs.Phase = PhaseFortify
	case PhaseFortify:
		advanceAfterFortify(gs, m)
	default:
		return nil, reject(CodeInvalidPhaseTransition, "cannot advance from %s", gs.Phase)
	}
	return &Change{
		Type:          ActionAdvancePhase,
		Player:        a.Player,
		PoolRemaining: gs.Pools[gs.CurrentPlayerName()],
	}, nil
}

// connected reports whether src can reach dst through a contiguous chain of
// territories owned by player. BFS over the adjacency graph restricted to
// the player's territories.
func connected(gs *GameState, m *WorldMap, player, src, dst string) bool {
	if src == dst {
		return false
	}
	visited := map[string]bool{src: true}
	queue := []string{src}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, n := range m.Neighbors(current) {
			if n == dst {
				return true
			}
			if !visited[n] && gs.Territories[n].Owner == player {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}
