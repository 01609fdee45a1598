package service

// Broadcaster delivers real-time events to connected clients. Implemented
// by the WebSocket hub. Session broadcasts reach every connection bound to
// the session and no others; connection events reach exactly one
// connection (rejections, resyncs).
type Broadcaster interface {
	BroadcastSessionEvent(code string, eventType string, data any)
	SendConnectionEvent(connID string, code string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when the
// WebSocket layer is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastSessionEvent(string, string, any)        {}
func (NoopBroadcaster) SendConnectionEvent(string, string, string, any) {}

// Event types sent to clients. Kept here so the registry and the hub agree
// on the wire vocabulary.
const (
	EventInitialized    = "initialized"
	EventStateUpdate    = "state_update"
	EventPhaseChanged   = "phase_changed"
	EventActionRejected = "action_rejected"
	EventGameEnded      = "game_ended"
)
