package handler

// BroadcastSessionEvent implements service.Broadcaster using the WebSocket
// hub.
func (h *Hub) BroadcastSessionEvent(code string, eventType string, data any) {
	h.BroadcastToSession(code, WSEvent{
		Type:        eventType,
		SessionCode: code,
		Data:        data,
	})
}

// SendConnectionEvent implements service.Broadcaster for events addressed to
// a single connection (rejections, resyncs).
func (h *Hub) SendConnectionEvent(connID string, code string, eventType string, data any) {
	h.SendToConnection(connID, WSEvent{
		Type:        eventType,
		SessionCode: code,
		Data:        data,
	})
}
