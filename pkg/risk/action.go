package risk

import "fmt"

// ActionType identifies what a player is trying to do.
type ActionType string

const (
	ActionDeploy       ActionType = "deploy"
	ActionAttack       ActionType = "attack"
	ActionFortify      ActionType = "fortify"
	ActionAdvancePhase ActionType = "advance_phase"
)

// Action is a single player-submitted move. Which fields are meaningful
// depends on Type:
//
//	deploy:        Territory, Armies
//	attack:        Source, Target, AttackerAfter, DefenderAfter
//	fortify:       Source, Target, Armies
//	advance_phase: no extra fields
type Action struct {
	Type          ActionType `json:"type"`
	Player        string     `json:"player"`
	Territory     string     `json:"territory,omitempty"`
	Source        string     `json:"source,omitempty"`
	Target        string     `json:"target,omitempty"`
	Armies        int        `json:"armies,omitempty"`
	AttackerAfter int        `json:"attacker_after,omitempty"`
	DefenderAfter int        `json:"defender_after,omitempty"`
}

// Describe returns a short human-readable description of the action.
func (a Action) Describe() string {
	switch a.Type {
	case ActionDeploy:
		return fmt.Sprintf("%s deploys %d to %s", a.Player, a.Armies, a.Territory)
	case ActionAttack:
		return fmt.Sprintf("%s attacks %s from %s (%d/%d after)", a.Player, a.Target, a.Source, a.AttackerAfter, a.DefenderAfter)
	case ActionFortify:
		return fmt.Sprintf("%s fortifies %s from %s with %d", a.Player, a.Target, a.Source, a.Armies)
	case ActionAdvancePhase:
		return fmt.Sprintf("%s advances phase", a.Player)
	default:
		return fmt.Sprintf("%s ???", a.Player)
	}
}

// TerritoryDelta reports a territory's state after an accepted action.
type TerritoryDelta struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Armies int    `json:"armies"`
}

// Change describes what an accepted action did. The broadcast gateway turns
// it into the client-facing update events.
type Change struct {
	Type          ActionType       `json:"type"`
	Player        string           `json:"player"`
	Territories   []TerritoryDelta `json:"territories,omitempty"`
	PoolRemaining int              `json:"pool_remaining"`
	Conquest      bool             `json:"conquest,omitempty"`
	Eliminated    string           `json:"eliminated,omitempty"`
	Winner        string           `json:"winner,omitempty"`

	// Phase/rotation movement caused by this action, if any.
	PhaseChanged  bool   `json:"phase_changed,omitempty"`
	OldPhase      Phase  `json:"old_phase,omitempty"`
	NewPhase      Phase  `json:"new_phase,omitempty"`
	CurrentPlayer string `json:"current_player"`
	Turn          int    `json:"turn"`
}
