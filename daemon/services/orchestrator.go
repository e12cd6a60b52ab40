// Package services provides the orchestration layer that wires the
// correlation engine to its snapshot source and output consumers, and
// manages the process lifecycle.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/api"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/board"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/bridge"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/mcp"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/packsource"
	"github.com/ruaan-deysel/battcorrelate/daemon/services/telemetrypub"
)

// Orchestrator wires one snapshot source (virtual board, serial board, or
// digital-twin bridge) to the correlation engine and fans its telemetry
// out to the REST/WebSocket API, MQTT, Prometheus, and shoutrrr
// notifications.
type Orchestrator struct {
	ctx *domain.Context
}

// CreateOrchestrator creates a new orchestrator with the given context.
func CreateOrchestrator(ctx *domain.Context) *Orchestrator {
	return &Orchestrator{ctx: ctx}
}

// Run validates the configured mode, starts every component, and blocks
// until a termination signal arrives or startup fails. A config error
// returns wrapping pack.ErrConfigInvalid; a board/bridge I/O failure at
// startup returns wrapping pack.ErrIoUnavailable. main.go maps these to
// the process exit codes.
func (o *Orchestrator) Run() error {
	if err := o.validateMode(); err != nil {
		return err
	}

	logger.Info("Starting battcorrelate v%s", o.ctx.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	wsHub := telemetrypub.NewHub()
	metrics := telemetrypub.NewMetrics()
	mqttClient := telemetrypub.NewMQTTClient(o.ctx.MQTT)
	notifier := telemetrypub.NewNotifier(o.ctx.NotifyURLs)
	apiServer := api.NewServer(o.ctx, wsHub, metrics)

	mcpServer := mcp.NewServer(o.ctx, apiServer)
	if err := mcpServer.Initialize(); err != nil {
		logger.Error("Failed to initialize MCP server: %v", err)
	} else {
		apiServer.GetRouter().PathPrefix("/mcp").Handler(mcpServer.GetHTTPHandler())
		logger.Success("MCP server initialized at /mcp endpoint")
	}

	if err := mqttClient.Connect(ctx); err != nil {
		logger.Error("Failed to connect to MQTT broker: %v", err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		wsHub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		apiServer.BroadcastEvents(ctx)
	}()

	telemetryCh := make(chan pack.Telemetry, 16)
	healthCh := make(chan pack.HealthRecord, 4)

	engine, closeSource, err := o.startSource(ctx, &wg, telemetryCh, healthCh)
	if err != nil {
		stop()
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		o.publishTelemetry(ctx, telemetryCh, apiServer, wsHub, metrics, mqttClient, notifier)
	}()
	go func() {
		defer wg.Done()
		o.publishHealth(ctx, healthCh, apiServer, metrics, mqttClient)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.StartHTTP(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server error: %v", err)
		}
	}()
	logger.Success("API server started on port %d", o.ctx.Port)

	<-ctx.Done()
	stop()
	logger.Warning("Received shutdown signal, shutting down...")

	if engine != nil {
		engine.Stop()
	}
	if closeSource != nil {
		closeSource()
	}
	mqttClient.Disconnect()
	apiServer.Stop()

	logger.Info("Waiting for all goroutines to complete...")
	wg.Wait()
	logger.Info("Shutdown complete")
	return nil
}

// RunMCPStdio runs the snapshot source and engine exactly as Run does, but
// serves MCP over STDIO instead of starting the HTTP server. Telemetry and
// health records only feed the in-memory store the MCP tools read; the
// WebSocket hub, Prometheus metrics, MQTT client and notifier are not fed.
// The STDIO transport is for a local AI client, not a dashboard.
func (o *Orchestrator) RunMCPStdio() error {
	if err := o.validateMode(); err != nil {
		return err
	}

	logger.Info("Starting battcorrelate v%s (MCP STDIO mode)", o.ctx.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wsHub := telemetrypub.NewHub()
	metrics := telemetrypub.NewMetrics()
	apiServer := api.NewServer(o.ctx, wsHub, metrics)

	telemetryCh := make(chan pack.Telemetry, 16)
	healthCh := make(chan pack.HealthRecord, 4)

	engine, closeSource, err := o.startSource(ctx, &wg, telemetryCh, healthCh)
	if err != nil {
		cancel()
		return err
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-telemetryCh:
				if !ok {
					return
				}
				apiServer.RecordTelemetry(t)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-healthCh:
				if !ok {
					return
				}
				apiServer.RecordHealth(h)
			}
		}
	}()

	mcpServer := mcp.NewServer(o.ctx, apiServer)
	if err := mcpServer.Initialize(); err != nil {
		cancel()
		if engine != nil {
			engine.Stop()
		}
		if closeSource != nil {
			closeSource()
		}
		wg.Wait()
		return fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger.Info("MCP STDIO transport ready, waiting for client")
	runErr := mcpServer.RunSTDIO(sigCtx)

	logger.Info("MCP STDIO transport stopped, cleaning up...")
	cancel()
	if engine != nil {
		engine.Stop()
	}
	if closeSource != nil {
		closeSource()
	}
	wg.Wait()
	logger.Info("MCP STDIO shutdown complete")
	return runErr
}

// validateMode enforces the exactly-one-of VirtualBoard, SerialPort, or
// Bridge rule.
func (o *Orchestrator) validateMode() error {
	modes := 0
	if o.ctx.VirtualBoard {
		modes++
	}
	if o.ctx.SerialPort != "" && !o.ctx.Bridge {
		modes++
	}
	if o.ctx.Bridge {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("%w: exactly one of --virtual-board, --port, --bridge must be set", pack.ErrConfigInvalid)
	}
	if o.ctx.Bridge && (o.ctx.BridgeTwinURL == "" || o.ctx.SerialPort == "") {
		return fmt.Errorf("%w: --bridge requires both --twin-url and --port", pack.ErrConfigInvalid)
	}
	return nil
}

// startSource starts the configured snapshot source and returns the engine
// driving it (nil in bridge mode, which re-ingests the board's own
// telemetry directly) and a cleanup func for any opened serial device.
func (o *Orchestrator) startSource(
	ctx context.Context,
	wg *sync.WaitGroup,
	telemetryCh chan<- pack.Telemetry,
	healthCh chan<- pack.HealthRecord,
) (*pack.Engine, func(), error) {
	onHealth := func(h pack.HealthRecord) {
		select {
		case healthCh <- h:
		default:
		}
	}

	switch {
	case o.ctx.VirtualBoard:
		engine := pack.NewEngine(onHealth)
		o.wireSourceReset(engine)
		engine.Start(ctx)
		src := packsource.NewSource()

		wg.Add(2)
		go func() {
			defer wg.Done()
			runVirtualSource(ctx, src, engine)
		}()
		go func() {
			defer wg.Done()
			fanOutEngine(ctx, engine, telemetryCh)
		}()
		return engine, nil, nil

	case o.ctx.Bridge:
		port, err := board.Open(o.ctx.SerialPort)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening board at %s: %v", pack.ErrIoUnavailable, o.ctx.SerialPort, err)
		}
		br := bridge.New(o.ctx.BridgeTwinURL, port, func(t pack.Telemetry) {
			select {
			case telemetryCh <- t:
			default:
				logger.Warning("bridge: telemetry channel full, dropping record")
			}
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := br.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("bridge: %v", err)
			}
		}()
		return nil, func() { port.Close() }, nil

	default: // serial port
		port, err := board.Open(o.ctx.SerialPort)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening board at %s: %v", pack.ErrIoUnavailable, o.ctx.SerialPort, err)
		}
		engine := pack.NewEngine(onHealth)
		o.wireSourceReset(engine)
		engine.Start(ctx)

		wg.Add(2)
		go func() {
			defer wg.Done()
			runSerialSource(ctx, o.ctx.Hub, port, engine)
		}()
		go func() {
			defer wg.Done()
			fanOutEngine(ctx, engine, telemetryCh)
		}()
		return engine, func() { port.Close() }, nil
	}
}

// wireSourceReset publishes domain.SourceResetEvent on o.ctx.Hub whenever
// the engine resets its state after a decreasing timestamp.
func (o *Orchestrator) wireSourceReset(engine *pack.Engine) {
	engine.OnSourceReset(func(prevMs, newMs int64) {
		domain.Publish(o.ctx.Hub, domain.TopicSourceReset, domain.SourceResetEvent{
			PreviousTimestampMs: prevMs,
			NewTimestampMs:      newMs,
		})
	})
}

// runVirtualSource feeds the engine from a synthetic snapshot generator at
// the source's native 100ms rate until ctx is cancelled.
func runVirtualSource(ctx context.Context, src *packsource.Source, engine *pack.Engine) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Ingest(src.Next())
		}
	}
}

// runSerialSource reads the inbound framing off a serial device and feeds
// decoded snapshots to the engine, reporting decode errors through the
// engine's counters and publishing domain.FrameLossEvent for each
// incomplete cycle.
func runSerialSource(ctx context.Context, hub *domain.EventBus, port *board.Port, engine *pack.Engine) {
	decoder := pack.NewInboundDecoder()
	buf := make([]byte, 4096)
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			logger.Warning("board: read failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		snaps, errs := decoder.Feed(buf[:n])
		for _, e := range errs {
			engine.NoteFrameError(e)
			if errors.Is(e, pack.ErrIncompleteCycle) {
				domain.Publish(hub, domain.TopicFrameLoss, domain.FrameLossEvent{})
			}
		}
		// The inbound framing carries no timestamp; snapshots are stamped
		// with the receive time so the state machine's tick clock advances.
		for _, s := range snaps {
			s.TimestampMs = time.Since(start).Milliseconds()
			engine.Ingest(s)
		}
	}
}

// fanOutEngine relays an engine's telemetry channel onto the shared
// publish channel until the engine closes it (on Stop) or ctx is
// cancelled.
func fanOutEngine(ctx context.Context, engine *pack.Engine, out chan<- pack.Telemetry) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-engine.Telemetry():
			if !ok {
				return
			}
			select {
			case out <- t:
			default:
				logger.Warning("telemetry fan-out channel full, dropping record")
			}
		}
	}
}

// publishTelemetry is the single publisher task: it drains telemetryCh
// and writes each record to every external consumer, and
// publishes a StateChangeEvent on the domain eventbus whenever
// SystemState differs from the previous record.
func (o *Orchestrator) publishTelemetry(
	ctx context.Context,
	telemetryCh <-chan pack.Telemetry,
	apiServer *api.Server,
	wsHub *telemetrypub.Hub,
	metrics *telemetrypub.Metrics,
	mqttClient *telemetrypub.MQTTClient,
	notifier *telemetrypub.Notifier,
) {
	var prevState pack.State
	haveState := false

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-telemetryCh:
			if !ok {
				return
			}
			apiServer.RecordTelemetry(t)
			wsHub.Publish(t)
			metrics.Observe(t)
			mqttClient.PublishTelemetry(t)
			notifier.Notify(t)

			if haveState && prevState != t.SystemState {
				domain.Publish(o.ctx.Hub, domain.TopicStateChange, domain.StateChangeEvent{
					TimestampMs: t.TimestampMs,
					From:        prevState,
					To:          t.SystemState,
					Latched:     t.SystemState == pack.StateEmergency,
				})
			}
			prevState, haveState = t.SystemState, true
		}
	}
}

// publishHealth drains healthCh and writes each record to the
// REST/Prometheus/MQTT/eventbus consumers.
func (o *Orchestrator) publishHealth(
	ctx context.Context,
	healthCh <-chan pack.HealthRecord,
	apiServer *api.Server,
	metrics *telemetrypub.Metrics,
	mqttClient *telemetrypub.MQTTClient,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-healthCh:
			if !ok {
				return
			}
			apiServer.RecordHealth(h)
			metrics.ObserveHealth(h)
			mqttClient.PublishHealth(h)
			domain.Publish(o.ctx.Hub, domain.TopicHealth, h)
		}
	}
}
