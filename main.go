// Package main is the entry point for the battery pack correlation engine
// daemon.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ruaan-deysel/battcorrelate/daemon/cmd"
	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// Version is the application version, set at build time via ldflags.
var Version = "dev"

var cli struct {
	LogsDir  string `default:"/var/log" help:"directory to store logs"`
	Port     int    `default:"8043" help:"HTTP server port"`
	Debug    bool   `default:"false" help:"enable debug mode with stdout logging"`
	LogLevel string `default:"info" help:"log level: debug, info, warning, error"`

	CORSOrigin string `default:"*" env:"CORS_ORIGIN" help:"Access-Control-Allow-Origin value"`

	// Snapshot source: exactly one of these three selects the mode.
	VirtualBoard  bool   `default:"false" help:"synthesise snapshots from an internal source"`
	SerialPort    string `default:"" name:"port" help:"serial device path for the inbound framing (e.g. /dev/ttyUSB0)"`
	Bridge        bool   `default:"false" help:"bridge a digital-twin JSON feed to a serial-attached board"`
	BridgeTwinURL string `default:"" name:"twin-url" help:"digital-twin snapshot endpoint, required with --bridge"`

	MCPStdio bool `default:"false" name:"mcp-stdio" help:"serve MCP over stdin/stdout instead of the HTTP API"`

	MQTTEnabled     bool   `default:"false" env:"MQTT_ENABLED" help:"enable MQTT publishing"`
	MQTTBroker      string `default:"" env:"MQTT_BROKER" help:"MQTT broker hostname or IP"`
	MQTTPort        int    `default:"1883" env:"MQTT_PORT" help:"MQTT broker port"`
	MQTTUsername    string `default:"" env:"MQTT_USERNAME" help:"MQTT username"`
	MQTTPassword    string `default:"" env:"MQTT_PASSWORD" help:"MQTT password"`
	MQTTClientID    string `default:"battcorrelate" env:"MQTT_CLIENT_ID" help:"MQTT client ID"`
	MQTTTopicPrefix string `default:"battcorrelate" env:"MQTT_TOPIC_PREFIX" help:"MQTT topic prefix"`
	MQTTUseTLS      bool   `default:"false" env:"MQTT_USE_TLS" help:"use TLS for MQTT connection"`
	MQTTQoS         int    `default:"0" env:"MQTT_QOS" help:"MQTT QoS level (0, 1, or 2)"`
	MQTTRetain      bool   `default:"true" env:"MQTT_RETAIN" help:"retain MQTT messages"`

	NotifyURLs []string `name:"notify-url" help:"shoutrrr notification URL, repeatable"`

	Boot cmd.Boot `cmd:"" default:"1" help:"run the correlation engine"`
}

// cleanupOldLogs removes old rotated log files from previous versions.
// Needed because lumberjack's MaxBackups only prevents new backups, it
// doesn't clean up existing ones from before the setting was changed.
func cleanupOldLogs(logsDir, baseName string) {
	pattern := filepath.Join(logsDir, baseName+"-*.log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return
	}
	for _, f := range files {
		_ = os.Remove(f)
	}
}

func main() {
	kctx := kong.Parse(&cli)

	fileCfg, err := domain.LoadConfigFile(domain.DefaultConfigPath)
	if err != nil {
		log.Printf("WARNING: failed to load config file: %v", err)
	}
	applyFileConfig(fileCfg)

	switch strings.ToLower(cli.LogLevel) {
	case "debug":
		logger.SetLevel(logger.LevelDebug)
	case "info":
		logger.SetLevel(logger.LevelInfo)
	case "warning", "warn":
		logger.SetLevel(logger.LevelWarning)
	case "error":
		logger.SetLevel(logger.LevelError)
	default:
		logger.SetLevel(logger.LevelInfo)
	}

	switch {
	case cli.MCPStdio:
		// STDIO mode: stdout is reserved for MCP JSON-RPC. Log to file +
		// stderr so MCP communication is not corrupted.
		cleanupOldLogs(cli.LogsDir, "battcorrelate")
		fileLogger := &lumberjack.Logger{
			Filename:   filepath.Join(cli.LogsDir, "battcorrelate.log"),
			MaxSize:    5,
			MaxBackups: 1,
			MaxAge:     1,
		}
		log.SetOutput(io.MultiWriter(fileLogger, os.Stderr))
	case cli.Debug:
		log.SetOutput(os.Stdout)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		logger.SetLevel(logger.LevelDebug)
		log.Println("Debug mode enabled - logging to stdout")
	default:
		cleanupOldLogs(cli.LogsDir, "battcorrelate")
		fileLogger := &lumberjack.Logger{
			Filename:   filepath.Join(cli.LogsDir, "battcorrelate.log"),
			MaxSize:    5,
			MaxBackups: 1,
			MaxAge:     1,
		}
		log.SetOutput(io.MultiWriter(fileLogger, os.Stdout))
	}

	log.Printf("Starting battcorrelate v%s (log level: %s)", Version, cli.LogLevel)

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if fw, ferr := domain.NewFileWatcher(500 * time.Millisecond); ferr == nil {
		if ferr := fw.WatchFile(domain.DefaultConfigPath); ferr == nil {
			go fw.Run(watchCtx, []string{domain.DefaultConfigPath}, reloadLogLevel)
			defer fw.Close()
		}
	} else {
		logger.Debug("config file watcher unavailable: %v", ferr)
	}

	appCtx := &domain.Context{
		Hub: domain.NewEventBus(1024),
		Config: domain.Config{
			Version:    Version,
			Port:       cli.Port,
			CORSOrigin: cli.CORSOrigin,
			LogLevel:   cli.LogLevel,

			VirtualBoard:  cli.VirtualBoard,
			SerialPort:    cli.SerialPort,
			Bridge:        cli.Bridge,
			BridgeTwinURL: cli.BridgeTwinURL,

			MCPStdio: cli.MCPStdio,

			MQTT: domain.MQTTConfig{
				Enabled:     cli.MQTTEnabled,
				Broker:      cli.MQTTBroker,
				Port:        cli.MQTTPort,
				Username:    cli.MQTTUsername,
				Password:    cli.MQTTPassword,
				ClientID:    cli.MQTTClientID,
				TopicPrefix: cli.MQTTTopicPrefix,
				UseTLS:      cli.MQTTUseTLS,
				QoS:         cli.MQTTQoS,
				Retain:      cli.MQTTRetain,
			},

			NotifyURLs: cli.NotifyURLs,
		},
	}

	err = kctx.Run(appCtx)
	exitOnError(err)
}

// exitOnError maps the orchestrator's error kinds to process exit codes:
// 0 on a clean stop, 2 on invalid configuration, 3 on an unrecoverable
// I/O failure, 1 for anything else. kong's FatalIfErrorf always exits 1,
// so this replaces it rather than wrapping it.
func exitOnError(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, pack.ErrConfigInvalid):
		log.Printf("configuration error: %v", err)
		os.Exit(2)
	case errors.Is(err, pack.ErrIoUnavailable):
		log.Printf("I/O error: %v", err)
		os.Exit(3)
	default:
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// reloadLogLevel re-reads the config file's log_level field and applies it
// live. Every other field (mode, ports, broker settings) requires a
// restart to take effect, since the orchestrator has already been
// constructed from the values captured at startup.
func reloadLogLevel() {
	cfg, err := domain.LoadConfigFile(domain.DefaultConfigPath)
	if err != nil || cfg == nil || cfg.LogLevel == nil {
		return
	}
	switch strings.ToLower(*cfg.LogLevel) {
	case "debug":
		logger.SetLevel(logger.LevelDebug)
	case "info":
		logger.SetLevel(logger.LevelInfo)
	case "warning", "warn":
		logger.SetLevel(logger.LevelWarning)
	case "error":
		logger.SetLevel(logger.LevelError)
	default:
		return
	}
	logger.Info("log level reloaded from config file: %s", *cfg.LogLevel)
}

// applyFileConfig merges config file values into the CLI struct. Kong sets
// fields to their declared defaults before parsing, so file config values
// are applied after kong.Parse to fill in non-defaulted values: CLI flag >
// env var > config file > struct default.
func applyFileConfig(cfg *domain.FileConfig) {
	if cfg == nil {
		return
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}

	setInt(&cli.Port, cfg.Port)
	setStr(&cli.LogLevel, cfg.LogLevel)
	setStr(&cli.CORSOrigin, cfg.CORSOrigin)

	setBool(&cli.VirtualBoard, cfg.VirtualBoard)
	setStr(&cli.SerialPort, cfg.SerialPort)
	setBool(&cli.Bridge, cfg.Bridge)
	setStr(&cli.BridgeTwinURL, cfg.BridgeTwinURL)

	if len(cfg.NotifyURLs) > 0 {
		cli.NotifyURLs = cfg.NotifyURLs
	}

	if m := cfg.MQTT; m != nil {
		setBool(&cli.MQTTEnabled, m.Enabled)
		setStr(&cli.MQTTBroker, m.Broker)
		setInt(&cli.MQTTPort, m.Port)
		setStr(&cli.MQTTUsername, m.Username)
		setStr(&cli.MQTTPassword, m.Password)
		setStr(&cli.MQTTClientID, m.ClientID)
		setStr(&cli.MQTTTopicPrefix, m.TopicPrefix)
		setBool(&cli.MQTTUseTLS, m.UseTLS)
		setInt(&cli.MQTTQoS, m.QoS)
		setBool(&cli.MQTTRetain, m.Retain)
	}
}
