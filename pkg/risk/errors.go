package risk

import "fmt"

// Rejection reason codes. Every rejected action carries exactly one of
// these, machine-readable, alongside a human-readable message.
const (
	CodeUnauthorizedClient     = "UNAUTHORIZED_CLIENT"
	CodeNotYourTurn            = "NOT_YOUR_TURN"
	CodeTerritoryNotFound      = "TERRITORY_NOT_FOUND"
	CodeNotOwner               = "NOT_OWNER"
	CodeNotAdjacent            = "NOT_ADJACENT"
	CodeInsufficientArmies     = "INSUFFICIENT_ARMIES"
	CodeArmiesIncreased        = "ARMIES_INCREASED"
	CodePhaseRequirementUnmet  = "PHASE_REQUIREMENT_UNMET"
	CodeInvalidPhaseTransition = "INVALID_PHASE_TRANSITION"
	CodeUnknownAction          = "UNKNOWN_ACTION"
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeSessionExists          = "SESSION_EXISTS"
	CodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
)

// Rejection is a typed refusal of an action. It never corrupts state: a
// rejected action leaves the session exactly as it was.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRejection returns the Rejection inside err, or nil if err is not one.
func AsRejection(err error) *Rejection {
	if r, ok := err.(*Rejection); ok {
		return r
	}
	return nil
}
