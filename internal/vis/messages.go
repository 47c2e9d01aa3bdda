package vis

import "encoding/json"

// Message is the envelope for all WebSocket communication.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CreateTestPacketRequest is sent by the client to inject a packet.
type CreateTestPacketRequest struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Protocol string `json:"protocol,omitempty"`
	VLANID   uint16 `json:"vlanId,omitempty"`
}

// BroadcastRequest is sent by the client to flood a broadcast frame.
type BroadcastRequest struct {
	Source   string `json:"source"`
	Protocol string `json:"protocol,omitempty"`
	VLANID   uint16 `json:"vlanId,omitempty"`
}

// BroadcastResult reports how many per-destination copies were created.
type BroadcastResult struct {
	Copies int `json:"copies"`
}

// SetSpeedRequest adjusts the wall-clock tick rate multiplier.
type SetSpeedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

// StatusPayload describes the run state of the simulation loop.
type StatusPayload struct {
	Running bool    `json:"running"`
	Tick    uint64  `json:"tick"`
	Speed   float64 `json:"speed"`
	Clients int     `json:"clients"`
}

// ErrorPayload describes an error sent to the client.
type ErrorPayload struct {
	Message string `json:"message"`
}
