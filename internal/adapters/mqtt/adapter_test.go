package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-sim-core/internal/device"
	infra "github.com/nerrad567/gray-sim-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// fakeBroker records publishes and lets tests inject inbound messages.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]infra.MessageHandler
	published []publishedMsg
	connected bool
}

type publishedMsg struct {
	topic    string
	payload  []byte
	retained bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]infra.MessageHandler), connected: true}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler infra.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMsg{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) IsConnected() bool { return b.connected }

// deliver routes an inbound message to the handler whose subscription
// pattern matches, mimicking broker-side wildcard expansion.
func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()

	b.mu.Lock()
	var handler infra.MessageHandler
	for pattern, h := range b.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	b.mu.Unlock()

	if handler == nil {
		t.Fatalf("no subscription matches %q", topic)
	}
	return handler(topic, []byte(payload))
}

func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "+" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}

func (b *fakeBroker) results(t *testing.T, device string) []Result {
	t.Helper()

	b.mu.Lock()
	defer b.mu.Unlock()

	topic := infra.Topics{}.Result(device)
	var out []Result
	for _, m := range b.published {
		if m.topic != topic {
			continue
		}
		var r Result
		if err := json.Unmarshal(m.payload, &r); err != nil {
			t.Fatalf("unmarshalling result: %v", err)
		}
		out = append(out, r)
	}
	return out
}

type stubDirectory struct {
	devices map[string]*device.Device
	order   []*device.Device
}

func (s *stubDirectory) Device(name string) (*device.Device, error) {
	d, ok := s.devices[name]
	if !ok {
		return nil, fmt.Errorf("unknown device %q", name)
	}
	return d, nil
}

func (s *stubDirectory) Devices() []*device.Device { return s.order }

func newTestDevice(t *testing.T, name string) *device.Device {
	t.Helper()

	m, err := statemachine.NewBuilder("idle").Build()
	if err != nil {
		t.Fatalf("building machine: %v", err)
	}
	d, err := device.New(name, "test", m)
	if err != nil {
		t.Fatalf("creating device: %v", err)
	}
	err = d.AddParameter(device.Parameter{
		Name:    "target",
		Initial: 20,
		Validate: func(v float64) error {
			if v < 0 {
				return fmt.Errorf("negative: %v", v)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("AddParameter: %v", err)
	}
	if err := d.AddCommand("sum", func(args []float64) (float64, error) {
		var total float64
		for _, a := range args {
			total += a
		}
		return total, nil
	}); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}
	return d
}

func startAdapter(t *testing.T, broker *fakeBroker, dir DeviceDirectory) *Adapter {
	t.Helper()

	a := New(broker, dir, infra.Topics{}, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	// Wait for subscriptions to land.
	deadline := time.Now().Add(time.Second)
	for {
		broker.mu.Lock()
		n := len(broker.handlers)
		broker.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("adapter did not subscribe")
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Start() did not return after cancel")
		}
	})
	return a
}

func TestAdapter_Set(t *testing.T) {
	broker := newFakeBroker()
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{devices: map[string]*device.Device{"boiler-1": dev}, order: []*device.Device{dev}}
	startAdapter(t, broker, dir)

	if err := broker.deliver(t, "graysim/device/boiler-1/param/target/set", "42.5"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if got, _ := dev.Get("target"); got != 42.5 {
		t.Errorf("target = %v, want 42.5", got)
	}

	results := broker.results(t, "boiler-1")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != "ok" || r.Request != "set" || r.Target != "target" || r.Value != 42.5 {
		t.Errorf("result = %+v, want ok set target 42.5", r)
	}
}

func TestAdapter_SetRejected(t *testing.T) {
	broker := newFakeBroker()
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{devices: map[string]*device.Device{"boiler-1": dev}, order: []*device.Device{dev}}
	startAdapter(t, broker, dir)

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"validation", "graysim/device/boiler-1/param/target/set", "-5"},
		{"bad value", "graysim/device/boiler-1/param/target/set", "banana"},
		{"unknown device", "graysim/device/ghost/param/target/set", "1"},
		{"unknown parameter", "graysim/device/boiler-1/param/ghost/set", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(broker.results(t, "boiler-1")) + len(broker.results(t, "ghost"))
			if err := broker.deliver(t, tt.topic, tt.payload); err != nil {
				t.Fatalf("deliver: %v", err)
			}
			all := append(broker.results(t, "boiler-1"), broker.results(t, "ghost")...)
			if len(all) != before+1 {
				t.Fatalf("got %d results, want %d", len(all), before+1)
			}
			if last := all[len(all)-1]; last.Status != "error" || last.Error == "" {
				t.Errorf("result = %+v, want error status", last)
			}
		})
	}

	if got, _ := dev.Get("target"); got != 20 {
		t.Errorf("target = %v after rejected writes, want 20", got)
	}
}

func TestAdapter_Command(t *testing.T) {
	broker := newFakeBroker()
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{devices: map[string]*device.Device{"boiler-1": dev}, order: []*device.Device{dev}}
	startAdapter(t, broker, dir)

	if err := broker.deliver(t, "graysim/device/boiler-1/cmd/sum", "1 2 3.5"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	results := broker.results(t, "boiler-1")
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != "ok" || r.Request != "cmd" || r.Target != "sum" || r.Value != 6.5 {
		t.Errorf("result = %+v, want ok cmd sum 6.5", r)
	}
}

func TestAdapter_DisconnectedDevice(t *testing.T) {
	broker := newFakeBroker()
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{devices: map[string]*device.Device{"boiler-1": dev}, order: []*device.Device{dev}}
	startAdapter(t, broker, dir)

	dev.SetConnected(false)
	if err := broker.deliver(t, "graysim/device/boiler-1/param/target/set", "30"); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	results := broker.results(t, "boiler-1")
	if len(results) != 1 || results[0].Status != "error" {
		t.Fatalf("results = %+v, want one error", results)
	}
	if got, _ := dev.Get("target"); got != 20 {
		t.Errorf("target = %v, want 20 (write must not land)", got)
	}
}

func TestAdapter_PublishStates(t *testing.T) {
	broker := newFakeBroker()
	dev := newTestDevice(t, "boiler-1")
	hidden := newTestDevice(t, "hidden-1")
	hidden.SetConnected(false)
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev, "hidden-1": hidden},
		order:   []*device.Device{dev, hidden},
	}
	a := New(broker, dir, infra.Topics{}, 1, nil)

	a.PublishStates()

	broker.mu.Lock()
	defer broker.mu.Unlock()

	byTopic := make(map[string]publishedMsg)
	for _, m := range broker.published {
		byTopic[m.topic] = m
	}

	param, ok := byTopic["graysim/device/boiler-1/param/target"]
	if !ok {
		t.Fatal("parameter state was not published")
	}
	if string(param.payload) != "20" || !param.retained {
		t.Errorf("param publish = %q retained=%v, want 20 retained", param.payload, param.retained)
	}
	state, ok := byTopic["graysim/device/boiler-1/state"]
	if !ok {
		t.Fatal("device state was not published")
	}
	if string(state.payload) != "idle" {
		t.Errorf("state publish = %q, want idle", state.payload)
	}

	for topic := range byTopic {
		if strings.Contains(topic, "hidden-1") {
			t.Errorf("disconnected device published to %q", topic)
		}
	}
}
