package telemetry

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-sim-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.TelemetryConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	_, err := Connect(config.TelemetryConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "token",
		Org:     "org",
		Bucket:  "bucket",
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDisconnectedWritesAreNoops(t *testing.T) {
	// A zero client reports disconnected, so writes return without
	// touching the nil write API.
	c := &Client{}

	c.WriteParameter("boiler-1", "temperature", 42.5)
	c.WriteDeviceState("boiler-1", "heating")
	c.WriteCycle(1, 0.1, 0.1, 1)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})

	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
