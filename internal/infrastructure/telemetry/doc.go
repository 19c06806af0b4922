// Package telemetry streams parameter samples, device states and engine
// counters to InfluxDB. Writes are batched and asynchronous; a simulator
// run never blocks on the metrics backend.
package telemetry
