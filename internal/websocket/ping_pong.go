// Package websocket streams generated captcha samples over WebSocket
// connections.
package websocket

import (
	"encoding/json"
)

// JSONWriter is the write side of a WebSocket connection.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// Pong answers a client ping.
type Pong struct {
	Type string `json:"type"`
}

// PingHandler answers {"type":"ping"} keep-alives sent by dataset clients.
type PingHandler struct {
	conn JSONWriter
}

// NewPingHandler creates a new PingHandler.
func NewPingHandler(conn JSONWriter) *PingHandler {
	return &PingHandler{
		conn: conn,
	}
}

// Handle processes a message and returns true if it was a ping message.
func (h *PingHandler) Handle(message []byte) bool {
	if !IsPingMessage(message) {
		return false
	}

	// A failed pong also breaks the reader, which ends the stream.
	_ = h.conn.WriteJSON(Pong{Type: "pong"})
	return true
}

// IsPingMessage checks if a message is a ping message without processing it.
func IsPingMessage(message []byte) bool {
	var msg map[string]interface{}
	if err := json.Unmarshal(message, &msg); err != nil {
		return false
	}

	msgType, ok := msg["type"].(string)
	return ok && msgType == "ping"
}
