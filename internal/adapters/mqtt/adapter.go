// Package mqtt exposes simulated devices over an MQTT broker.
//
// The adapter subscribes to parameter write and command request topics,
// applies them through the locked device operations, and publishes a
// JSON result per request. Retained parameter and state topics are
// refreshed from the engine's cycle hook via PublishStates.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-sim-core/internal/adapters"
	"github.com/nerrad567/gray-sim-core/internal/device"
	infra "github.com/nerrad567/gray-sim-core/internal/infrastructure/mqtt"
)

// Broker is the subset of the MQTT client the adapter needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler infra.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceDirectory resolves device names to devices. The engine satisfies
// this interface.
type DeviceDirectory interface {
	Device(name string) (*device.Device, error)
	Devices() []*device.Device
}

// Result is the JSON reply published for every write or command request.
type Result struct {
	Request string  `json:"request"`
	Device  string  `json:"device"`
	Target  string  `json:"target"`
	Status  string  `json:"status"`
	Value   float64 `json:"value,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Adapter bridges the broker to the device directory.
type Adapter struct {
	broker  Broker
	devices DeviceDirectory
	topics  infra.Topics
	qos     byte
	log     Logger
}

// New creates an MQTT adapter over an already connected broker client.
func New(broker Broker, devices DeviceDirectory, topics infra.Topics, qos byte, logger Logger) *Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		broker:  broker,
		devices: devices,
		topics:  topics,
		qos:     qos,
		log:     logger,
	}
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "mqtt" }

// Start subscribes to the request topics and blocks until ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.broker.Subscribe(a.topics.AllParamSets(), a.qos, a.handleSet); err != nil {
		return fmt.Errorf("%w: %s: %w", adapters.ErrBind, a.topics.AllParamSets(), err)
	}
	if err := a.broker.Subscribe(a.topics.AllCommands(), a.qos, a.handleCommand); err != nil {
		return fmt.Errorf("%w: %s: %w", adapters.ErrBind, a.topics.AllCommands(), err)
	}

	a.log.Info("mqtt adapter subscribed",
		"sets", a.topics.AllParamSets(),
		"commands", a.topics.AllCommands(),
	)

	<-ctx.Done()
	return a.Stop()
}

// Stop removes the request subscriptions.
func (a *Adapter) Stop() error {
	if !a.broker.IsConnected() {
		return nil
	}
	if err := a.broker.Unsubscribe(a.topics.AllParamSets()); err != nil {
		return err
	}
	return a.broker.Unsubscribe(a.topics.AllCommands())
}

// PublishStates refreshes the retained parameter and state topics for
// every connected device. Wire it to the engine's cycle hook, sampled to
// taste.
func (a *Adapter) PublishStates() {
	for _, d := range a.devices.Devices() {
		if !d.Connected() {
			continue
		}
		name := d.Name()
		for param, value := range d.Snapshot() {
			topic := a.topics.ParamState(name, param)
			payload := strconv.FormatFloat(value, 'g', -1, 64)
			if err := a.broker.Publish(topic, []byte(payload), a.qos, true); err != nil {
				a.log.Warn("state publish failed", "topic", topic, "error", err)
				return
			}
		}
		topic := a.topics.DeviceState(name)
		if err := a.broker.Publish(topic, []byte(d.State()), a.qos, true); err != nil {
			a.log.Warn("state publish failed", "topic", topic, "error", err)
			return
		}
	}
}

// handleSet processes one parameter write request. The topic carries the
// device and parameter, the payload the numeric value.
func (a *Adapter) handleSet(topic string, payload []byte) error {
	dev, param, ok := a.parseSetTopic(topic)
	if !ok {
		return fmt.Errorf("mqtt adapter: malformed set topic %q", topic)
	}

	res := Result{Request: "set", Device: dev, Target: param, Status: "ok"}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		res.Status = "error"
		res.Error = fmt.Sprintf("invalid value %q", payload)
		return a.publishResult(res)
	}

	d, err := a.lookup(dev)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return a.publishResult(res)
	}
	if err := d.Set(param, value); err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return a.publishResult(res)
	}

	res.Value = value
	return a.publishResult(res)
}

// handleCommand processes one command request. Arguments are
// whitespace-separated floats in the payload.
func (a *Adapter) handleCommand(topic string, payload []byte) error {
	dev, cmd, ok := a.parseCommandTopic(topic)
	if !ok {
		return fmt.Errorf("mqtt adapter: malformed command topic %q", topic)
	}

	res := Result{Request: "cmd", Device: dev, Target: cmd, Status: "ok"}

	var args []float64
	for _, raw := range strings.Fields(string(payload)) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			res.Status = "error"
			res.Error = fmt.Sprintf("invalid argument %q", raw)
			return a.publishResult(res)
		}
		args = append(args, v)
	}

	d, err := a.lookup(dev)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return a.publishResult(res)
	}
	value, err := d.Call(cmd, args...)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return a.publishResult(res)
	}

	res.Value = value
	return a.publishResult(res)
}

func (a *Adapter) lookup(name string) (*device.Device, error) {
	d, err := a.devices.Device(name)
	if err != nil {
		return nil, err
	}
	if !d.Connected() {
		return nil, fmt.Errorf("mqtt adapter: device %q disconnected", name)
	}
	return d, nil
}

func (a *Adapter) publishResult(res Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("mqtt adapter: marshalling result: %w", err)
	}
	topic := a.topics.Result(res.Device)
	if err := a.broker.Publish(topic, payload, a.qos, false); err != nil {
		a.log.Warn("result publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

// parseSetTopic extracts device and parameter names from a
// <prefix>/device/<dev>/param/<param>/set topic.
func (a *Adapter) parseSetTopic(topic string) (dev, param string, ok bool) {
	rest, found := a.trimPrefix(topic)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 5 || parts[0] != "device" || parts[2] != "param" || parts[4] != "set" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// parseCommandTopic extracts device and command names from a
// <prefix>/device/<dev>/cmd/<command> topic.
func (a *Adapter) parseCommandTopic(topic string) (dev, cmd string, ok bool) {
	rest, found := a.trimPrefix(topic)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[0] != "device" || parts[2] != "cmd" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

func (a *Adapter) trimPrefix(topic string) (string, bool) {
	prefix := a.topics.Prefix
	if prefix == "" {
		prefix = infra.DefaultPrefix
	}
	rest, found := strings.CutPrefix(topic, prefix+"/")
	return rest, found
}
