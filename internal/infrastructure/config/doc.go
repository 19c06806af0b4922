// Package config provides configuration loading for graysim.
//
// Configuration is read from a YAML file with hardcoded defaults applied
// first and GRAYSIM_* environment variables applied last. The loaded
// configuration is validated before use; validation collects all problems
// into a single error rather than failing on the first.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	engine := engine.New(cfg.Simulation, log)
//
// # Sections
//
//   - simulation: cycle rate, speed factor, run limits
//   - devices: simulated device instances (model + initial parameters)
//   - adapters: stream (TCP) and MQTT protocol adapter settings
//   - api / websocket: control API server and event stream
//   - journal: SQLite run journal
//   - telemetry: InfluxDB parameter sampling
//   - logging: level, format, output
package config
