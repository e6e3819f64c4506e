package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PushNotificationPayload is the wake-up hint delivered through the push
// channel. It only identifies the device to poll; the authoritative command
// list is always re-fetched from the backend.
type PushNotificationPayload struct {
	DeviceID    string           `json:"deviceId"`
	LastCommand LastCommandBrief `json:"lastCommand"`
}

// LastCommandBrief summarizes the command that triggered the notification.
type LastCommandBrief struct {
	CommandID string    `json:"commandId"`
	IssuedBy  string    `json:"issuedBy"`
	CreatedAt time.Time `json:"-"`
}

type lastCommandWire struct {
	CommandID string `json:"commandId"`
	IssuedBy  string `json:"issuedBy"`
	CreatedAt int64  `json:"createdAt"`
}

// ParsePushNotification decodes a raw push payload. CreatedAt arrives as
// epoch milliseconds.
func ParsePushNotification(payload []byte) (PushNotificationPayload, error) {
	var wire struct {
		DeviceID    string           `json:"deviceId"`
		LastCommand *lastCommandWire `json:"lastCommand"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return PushNotificationPayload{}, fmt.Errorf("failed to parse push payload: %w", err)
	}
	if wire.DeviceID == "" || wire.LastCommand == nil || wire.LastCommand.CommandID == "" {
		return PushNotificationPayload{}, fmt.Errorf("push payload missing deviceId or lastCommand")
	}
	return PushNotificationPayload{
		DeviceID: wire.DeviceID,
		LastCommand: LastCommandBrief{
			CommandID: wire.LastCommand.CommandID,
			IssuedBy:  wire.LastCommand.IssuedBy,
			CreatedAt: time.UnixMilli(wire.LastCommand.CreatedAt),
		},
	}, nil
}
