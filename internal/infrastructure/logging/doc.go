// Package logging provides structured logging for graysim.
//
// It wraps log/slog with configuration-driven level filtering, JSON or text
// output, and default service/version attributes on every record.
//
// Domain packages do not import this package directly. They declare a small
// local Logger interface (Debug/Info/Warn/Error) which *logging.Logger
// satisfies, keeping infrastructure dependencies at the edges.
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("simulation started", "device", name, "speed", speed)
//
//	engineLog := log.With("component", "engine")
package logging
