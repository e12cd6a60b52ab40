// Package domain provides core runtime types shared across the correlation
// engine's CLI, orchestrator, and services: configuration, the application
// context, and the operational eventbus.
package domain

// Config holds the application's operational configuration: ports, modes,
// and broker settings. It never carries the engine's numeric thresholds,
// which are a fixed contract, not configuration.
type Config struct {
	Version string `json:"version"`

	Port       int    `json:"port"`
	CORSOrigin string `json:"cors_origin"`
	LogLevel   string `json:"log_level"`

	// Mode selects the snapshot source: exactly one of VirtualBoard,
	// SerialPort, or Bridge. Bridge also needs SerialPort (the board it
	// reads) and BridgeTwinURL.
	VirtualBoard  bool   `json:"virtual_board"`
	SerialPort    string `json:"serial_port"`
	Bridge        bool   `json:"bridge"`
	BridgeTwinURL string `json:"bridge_twin_url"`

	MCPStdio bool `json:"mcp_stdio"`

	MQTT MQTTConfig `json:"mqtt"`

	// NotifyURLs are shoutrrr service URLs notified on correlation state
	// transitions, at most once per cooldown (telemetrypub.Notifier). Empty
	// disables notifications.
	NotifyURLs []string `json:"notify_urls"`
}

// MQTTConfig holds MQTT publishing settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
	UseTLS      bool   `json:"use_tls"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
}
