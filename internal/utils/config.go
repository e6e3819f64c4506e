package utils

import (
	"fmt"

	"github.com/yonomi/thincloud-sdk/pkg/file"
)

// Config is the agent configuration file.
type Config struct {
	Cloud struct {
		Instance string `yaml:"instance"`  // Deployment name, i.e. api.<instance>.yonomi.cloud
		ClientID string `yaml:"client_id"` // OAuth client key
		APIKey   string `yaml:"api_key"`   // Static API key header value
		BaseURL  string `yaml:"base_url"`  // Optional override of the derived API base URL
	} `yaml:"cloud"`

	Storage struct {
		Path string `yaml:"path"` // Path to the session database file
	} `yaml:"storage"`

	Gateway struct {
		Enabled       bool   `yaml:"enabled"`        // Enable/disable the push listener
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the broker CA certificate (optional)
		Topic         string `yaml:"topic"`          // Topic the push notifications arrive on
		QOS           int    `yaml:"qos"`            // MQTT QoS level for notifications
		Workers       int    `yaml:"workers"`        // Fan-out width for per-command updates
	} `yaml:"gateway"`
}

// LoadConfig loads the YAML configuration from the specified file.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	if config.Cloud.Instance == "" && config.Cloud.BaseURL == "" {
		return nil, fmt.Errorf("config: either cloud.instance or cloud.base_url must be set")
	}

	return &config, nil
}
