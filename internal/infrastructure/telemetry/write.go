package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteParameter records one parameter sample for a device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteParameter("boiler-1", "temperature", 42.5)
func (c *Client) WriteParameter(device, parameter string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_params",
		map[string]string{
			"device":    device,
			"parameter": parameter,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceState records a device's current state machine state.
func (c *Client) WriteDeviceState(device, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device": device,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCycle records the engine's per-cycle counters.
func (c *Client) WriteCycle(cycle uint64, delta, runtime, speed float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"engine",
		nil,
		map[string]interface{}{
			"cycle":   int64(cycle),
			"delta":   delta,
			"runtime": runtime,
			"speed":   speed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
