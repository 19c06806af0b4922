// Package mqtt wraps the paho MQTT client for the simulator's broker
// connection.
//
// It owns connection lifecycle, Last Will registration, automatic
// re-subscription after reconnects, and panic recovery around message
// handlers. The topic layout lives in Topics so the adapter, telemetry
// and tests agree on naming.
package mqtt
