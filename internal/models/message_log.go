package models

import "time"

// Message directions as stored in the log.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageLogEntry records one wire message for test inspection. Raw is
// truncated before storage; Command and RequestID are filled only when the
// payload parsed as a protocol message.
type MessageLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Direction string    `json:"direction"`
	Raw       string    `json:"raw"`
	Command   string    `json:"command,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}
