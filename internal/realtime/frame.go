// Package realtime fans session events out to WebSocket clients grouped in per-session
// rooms.
package realtime

import (
	"encoding/json"
	"time"
)

// FrameTypeEvent marks a server-pushed event frame.
const FrameTypeEvent = "event"

// FrameTypeConnected is the first frame a client receives after joining a room.
const FrameTypeConnected = "connected"

// Frame is the envelope written to clients.
type Frame struct {
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent encodes payload into an event frame.
func NewEvent(sessionID, event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:      FrameTypeEvent,
		Event:     event,
		SessionID: sessionID,
		Payload:   raw,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
