package models

import "time"

// User is a user resource stored in the backend.
type User struct {
	Email     string         `json:"email"`
	Name      string         `json:"name,omitempty"`
	Active    *bool          `json:"active,omitempty"`
	Custom    map[string]any `json:"custom,omitempty"`
	UserID    string         `json:"userId"`
	CreatedAt *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

// ClientRegistrationRequest registers a mobile client and its push token.
type ClientRegistrationRequest struct {
	ApplicationName    string         `json:"applicationName"`
	ApplicationVersion string         `json:"applicationVersion"`
	DeviceModel        string         `json:"deviceModel"`
	DevicePlatform     string         `json:"devicePlatform"`
	DeviceVersion      string         `json:"deviceVersion"`
	DeviceToken        string         `json:"deviceToken"`
	InstallID          string         `json:"installId"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ClientID           string         `json:"clientId,omitempty"`
	UserID             string         `json:"userId,omitempty"`
}

// Client is a registered mobile client resource.
type Client struct {
	ApplicationName    string         `json:"applicationName"`
	ApplicationVersion string         `json:"applicationVersion"`
	DeviceModel        string         `json:"deviceModel"`
	DevicePlatform     string         `json:"devicePlatform"`
	DeviceVersion      string         `json:"deviceVersion"`
	DeviceToken        string         `json:"deviceToken"`
	InstallID          string         `json:"installId"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ClientID           string         `json:"clientId,omitempty"`
	UserID             string         `json:"userId,omitempty"`
	CreatedAt          *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time     `json:"updatedAt,omitempty"`
}

// Location is a GeoJSON point.
type Location struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Device is a device resource stored in the backend.
type Device struct {
	Active       *bool          `json:"active,omitempty"`
	DeviceID     string         `json:"deviceId"`
	DevicetypeID string         `json:"devicetypeId"`
	PhysicalID   string         `json:"physicalId"`
	Location     *Location      `json:"location,omitempty"`
	Custom       map[string]any `json:"custom,omitempty"`
	IsConnected  *bool          `json:"isConnected,omitempty"`
	CreatedAt    *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time     `json:"updatedAt,omitempty"`
}
