package domain

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath is the standard location for the operational config
// file.
const DefaultConfigPath = "/etc/battcorrelate/config.yml"

// FileConfig represents the YAML configuration file structure. Values set
// in the config file serve as defaults that can be overridden by CLI flags
// and environment variables. Engine thresholds are never part of this
// file.
type FileConfig struct {
	Port       *int    `yaml:"port,omitempty"`
	LogLevel   *string `yaml:"log_level,omitempty"`
	CORSOrigin *string `yaml:"cors_origin,omitempty"`

	VirtualBoard  *bool   `yaml:"virtual_board,omitempty"`
	SerialPort    *string `yaml:"serial_port,omitempty"`
	Bridge        *bool   `yaml:"bridge,omitempty"`
	BridgeTwinURL *string `yaml:"bridge_twin_url,omitempty"`

	MQTT *FileConfigMQTT `yaml:"mqtt,omitempty"`

	NotifyURLs []string `yaml:"notify_urls,omitempty"`
}

// FileConfigMQTT holds MQTT-specific settings from the config file.
type FileConfigMQTT struct {
	Enabled     *bool   `yaml:"enabled,omitempty"`
	Broker      *string `yaml:"broker,omitempty"`
	Port        *int    `yaml:"port,omitempty"`
	Username    *string `yaml:"username,omitempty"`
	Password    *string `yaml:"password,omitempty"`
	ClientID    *string `yaml:"client_id,omitempty"`
	TopicPrefix *string `yaml:"topic_prefix,omitempty"`
	UseTLS      *bool   `yaml:"use_tls,omitempty"`
	QoS         *int    `yaml:"qos,omitempty"`
	Retain      *bool   `yaml:"retain,omitempty"`
}

// LoadConfigFile reads and parses a YAML config file.
// Returns nil without error if the file does not exist.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a trusted config file path, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}
