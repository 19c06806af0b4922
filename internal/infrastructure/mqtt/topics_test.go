package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "graysim/system/status"},
		{"engine status", topics.EngineStatus(), "graysim/system/engine"},
		{"param state", topics.ParamState("boiler-1", "temperature"), "graysim/device/boiler-1/param/temperature"},
		{"param set", topics.ParamSet("boiler-1", "target"), "graysim/device/boiler-1/param/target/set"},
		{"command", topics.Command("chopper-1", "start"), "graysim/device/chopper-1/cmd/start"},
		{"result", topics.Result("chopper-1"), "graysim/device/chopper-1/result"},
		{"device state", topics.DeviceState("boiler-1"), "graysim/device/boiler-1/state"},
		{"all param sets", topics.AllParamSets(), "graysim/device/+/param/+/set"},
		{"all commands", topics.AllCommands(), "graysim/device/+/cmd/+"},
		{"all topics", topics.AllTopics(), "graysim/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopicsCustomPrefix(t *testing.T) {
	topics := Topics{Prefix: "lab/sim"}

	if got, want := topics.ParamState("d", "p"), "lab/sim/device/d/param/p"; got != want {
		t.Errorf("ParamState() = %q, want %q", got, want)
	}
	if got, want := topics.SystemStatus(), "lab/sim/system/status"; got != want {
		t.Errorf("SystemStatus() = %q, want %q", got, want)
	}
}

func TestClientValidation(t *testing.T) {
	// A zero client is never connected; validation runs before any broker
	// traffic, so these paths are safe without a live broker.
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Publish("", nil, 0, false); err != ErrInvalidTopic {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("t", nil, 3, false); err != ErrInvalidQoS {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Publish("t", nil, 1, false); err != ErrNotConnected {
		t.Errorf("Publish() disconnected error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("t", 1, nil); err == nil {
		t.Error("Subscribe(nil handler) expected error")
	}
	if err := c.Subscribe("t", 1, func(string, []byte) error { return nil }); err != ErrNotConnected {
		t.Errorf("Subscribe() disconnected error = %v, want ErrNotConnected", err)
	}
	if err := c.Unsubscribe("t"); err != ErrNotConnected {
		t.Errorf("Unsubscribe() disconnected error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
