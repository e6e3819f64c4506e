package models

import "time"

// CommandState is the lifecycle state of a device command as tracked by the
// backend.
type CommandState string

const (
	CommandStatePending    CommandState = "PENDING"
	CommandStateQueued     CommandState = "QUEUED"
	CommandStateAck        CommandState = "ACK"
	CommandStateCompleted  CommandState = "COMPLETED"
	CommandStateNack       CommandState = "NACK"
	CommandStateSuccessful CommandState = "SUCCESSFUL"
	CommandStateFailed     CommandState = "FAILED"
	CommandStateRevoked    CommandState = "REVOKED"
)

// DeviceCommand is a command dispatched by the backend to a device. Identity
// is the (DeviceID, CommandID) pair; the client only ever reads commands and
// requests state/response updates.
type DeviceCommand struct {
	DeviceID  string         `json:"deviceId"`
	CommandID string         `json:"commandId"`
	Name      string         `json:"name"`
	UserID    string         `json:"userId"`
	Request   map[string]any `json:"request,omitempty"`
	Response  map[string]any `json:"response,omitempty"`
	State     CommandState   `json:"state"`
	CreatedAt *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

// CommandUpdateRequest is the body of a command state-update call.
type CommandUpdateRequest struct {
	State    CommandState   `json:"state"`
	Response map[string]any `json:"response,omitempty"`
}
