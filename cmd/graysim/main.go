// graysim - Hardware Device Simulator
//
// This is the main entry point for the graysim simulator. graysim runs a
// set of stateful device models on a shared cycle engine and exposes them
// over a TCP line protocol, MQTT, and an HTTP control API, so that control
// software can be developed and tested without physical hardware.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/nerrad567/gray-sim-core/internal/adapters"
	mqttadapter "github.com/nerrad567/gray-sim-core/internal/adapters/mqtt"
	"github.com/nerrad567/gray-sim-core/internal/adapters/stream"
	"github.com/nerrad567/gray-sim-core/internal/api"
	"github.com/nerrad567/gray-sim-core/internal/devices"
	"github.com/nerrad567/gray-sim-core/internal/engine"
	"github.com/nerrad567/gray-sim-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-sim-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-sim-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-sim-core/internal/infrastructure/telemetry"
	"github.com/nerrad567/gray-sim-core/internal/journal"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Wiring for every subsystem lives here
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting graysim",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the run journal (optional)
	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(journal.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		}, log)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := jrnl.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		log.Info("journal opened", "path", cfg.Journal.Path)
	} else {
		log.Info("journal disabled")
	}

	// Connect to InfluxDB telemetry (optional)
	var tele *telemetry.Client
	if cfg.Telemetry.Enabled {
		tele, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := tele.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		tele.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Build the cycle engine
	eng, err := engine.New(engine.Config{
		CycleDelay: cfg.Simulation.CyclePeriod(),
		Speed:      cfg.Simulation.Speed,
		MaxCycles:  cfg.Simulation.MaxCycles,
		MaxRuntime: cfg.Simulation.MaxRuntime,
	}, log)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	// Build devices from the catalogue
	catalogue := devices.NewCatalogue()
	for _, devCfg := range cfg.Devices {
		d, buildErr := catalogue.Build(devCfg)
		if buildErr != nil {
			return fmt.Errorf("building devices: %w", buildErr)
		}
		if addErr := eng.AddDevice(d); addErr != nil {
			return fmt.Errorf("registering devices: %w", addErr)
		}
		log.Info("device registered", "name", devCfg.Name, "model", devCfg.Model)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.Adapters.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.Adapters.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.Adapters.MQTT.Broker.Host, cfg.Adapters.MQTT.Broker.Port),
			"client_id", cfg.Adapters.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT adapter disabled")
	}

	// Register enabled protocol adapters
	registry := adapters.NewRegistry()
	var mqttAdapter *mqttadapter.Adapter
	if cfg.Adapters.Stream.Enabled {
		streamCfg := stream.Config{
			Host:        cfg.Adapters.Stream.Host,
			Port:        cfg.Adapters.Stream.Port,
			Terminator:  cfg.Adapters.Stream.Terminator,
			IdleTimeout: cfg.Adapters.Stream.IdleTimeoutDuration(),
		}
		if regErr := registry.Register("stream", func() (adapters.Adapter, error) {
			return stream.New(streamCfg, eng, log), nil
		}); regErr != nil {
			return fmt.Errorf("registering stream adapter: %w", regErr)
		}
	}
	if mqttClient != nil {
		if regErr := registry.Register("mqtt", func() (adapters.Adapter, error) {
			mqttAdapter = mqttadapter.New(mqttClient, eng, mqttClient.Topics(), byte(cfg.Adapters.MQTT.QoS), log)
			return mqttAdapter, nil
		}); regErr != nil {
			return fmt.Errorf("registering mqtt adapter: %w", regErr)
		}
	}

	// Start the WebSocket hub early so observers can broadcast through it
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Begin the journal run
	if jrnl != nil {
		runID, beginErr := jrnl.BeginRun(ctx, cfg.Simulation.Speed, cfg.Simulation.CyclePeriod())
		if beginErr != nil {
			return fmt.Errorf("beginning journal run: %w", beginErr)
		}
		log.Info("journal run started", "run_id", runID)
	}

	// Wire per-device transition observers. Observers run on the engine
	// goroutine inside Process, so they only hand off to async sinks.
	var lastCycle atomic.Uint64
	var lastRuntime atomic.Uint64 // float64 bits
	for _, d := range eng.Devices() {
		name := d.Name()
		d.SetObserver(func(ev statemachine.Event) {
			if ev.Kind == statemachine.EventInState {
				return
			}
			cycle := lastCycle.Load()
			runtime := math.Float64frombits(lastRuntime.Load())
			if jrnl != nil {
				jrnl.RecordTransition(name, ev.Kind.String(), string(ev.State), cycle, runtime)
			}
			if ev.Kind == statemachine.EventEntry {
				if tele != nil {
					tele.WriteDeviceState(name, string(ev.State))
				}
				hub.Broadcast(api.ChannelTransition, map[string]any{
					"device": name,
					"state":  string(ev.State),
					"cycle":  cycle,
				})
			}
		})
	}

	// Per-cycle hook: counters, sampled telemetry, retained MQTT state
	eng.OnCycle(func(info engine.CycleInfo) {
		lastCycle.Store(info.Cycle)
		lastRuntime.Store(math.Float64bits(info.Runtime))

		hub.Broadcast(api.ChannelCycle, map[string]any{
			"cycle":   info.Cycle,
			"delta":   info.Delta,
			"runtime": info.Runtime,
		})
		if tele != nil {
			tele.WriteCycle(info.Cycle, info.Delta, info.Runtime, cfg.Simulation.Speed)
		}

		sampleEvery := cfg.Telemetry.SampleEvery
		if sampleEvery == 0 || info.Cycle%sampleEvery != 0 {
			return
		}
		for _, d := range eng.Devices() {
			params := d.Snapshot()
			state := string(d.State())
			if tele != nil {
				for p, v := range params {
					tele.WriteParameter(d.Name(), p, v)
				}
			}
			if jrnl != nil {
				jrnl.RecordSnapshot(d.Name(), state, params, info.Cycle, info.Runtime)
			}
			hub.Broadcast(api.ChannelParams, map[string]any{
				"device": d.Name(),
				"state":  state,
				"params": params,
				"cycle":  info.Cycle,
			})
		}
		if mqttAdapter != nil {
			mqttAdapter.PublishStates()
		}
	})

	// Start protocol adapters
	adapterErrs := make(chan error, len(registry.Protocols()))
	for _, protocol := range registry.Protocols() {
		adapter, newErr := registry.New(protocol)
		if newErr != nil {
			return fmt.Errorf("creating %s adapter: %w", protocol, newErr)
		}
		go func() {
			if startErr := adapter.Start(ctx); startErr != nil {
				log.Error("adapter failed", "adapter", adapter.Name(), "error", startErr)
				adapterErrs <- fmt.Errorf("%s adapter: %w", adapter.Name(), startErr)
				cancel()
			}
		}()
		log.Info("adapter starting", "adapter", protocol)
	}

	// Start the control API server
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Engine:      eng,
			Journal:     jrnl,
			ExternalHub: hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, jrnl, mqttClient, tele); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, simulation starting",
		"devices", len(eng.Devices()),
		"speed", cfg.Simulation.Speed,
		"cycle_rate", cfg.Simulation.CycleRate,
	)

	// Run the simulation. Blocks until the context is cancelled, a limit is
	// reached, Stop is called, or a device fails.
	runErr := eng.Run(ctx)

	// Close out the journal run with the final counters
	if jrnl != nil {
		status := eng.Status()
		if endErr := jrnl.EndRun(context.Background(), status.Cycles, status.Runtime); endErr != nil {
			log.Error("error ending journal run", "error", endErr)
		}
		jrnl.Flush()
	}

	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}

	// Surface an adapter bind failure that triggered the shutdown
	select {
	case adapterErr := <-adapterErrs:
		return adapterErr
	default:
	}

	log.Info("graysim stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYSIM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYSIM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - jrnl: Journal to check (may be nil if disabled)
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - tele: Telemetry client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, jrnl *journal.Journal, mqttClient *mqtt.Client, tele *telemetry.Client) error {
	if jrnl != nil {
		if err := jrnl.HealthCheck(ctx); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if tele != nil {
		if err := tele.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}
