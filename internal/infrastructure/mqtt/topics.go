package mqtt

import "fmt"

// DefaultPrefix is the topic tree root used when no prefix is configured.
const DefaultPrefix = "graysim"

// Topics builds simulator MQTT topic strings. Using these helpers keeps
// topic naming consistent between the adapter, telemetry and any external
// clients.
//
//	topics := mqtt.Topics{Prefix: "graysim"}
//	topics.ParamState("boiler-1", "temperature")
//	// Returns: "graysim/device/boiler-1/param/temperature"
type Topics struct {
	// Prefix is the topic tree root. Empty means DefaultPrefix.
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// SystemStatus returns the simulator status topic, also used for the
// Last Will message.
//
// Example: graysim/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// EngineStatus returns the topic for engine cycle counters.
//
// Example: graysim/system/engine
func (t Topics) EngineStatus() string {
	return fmt.Sprintf("%s/system/engine", t.root())
}

// ParamState returns the retained state topic for one parameter.
//
// Example: graysim/device/boiler-1/param/temperature
func (t Topics) ParamState(device, param string) string {
	return fmt.Sprintf("%s/device/%s/param/%s", t.root(), device, param)
}

// ParamSet returns the write-request topic for one parameter.
//
// Example: graysim/device/boiler-1/param/temperature/set
func (t Topics) ParamSet(device, param string) string {
	return fmt.Sprintf("%s/device/%s/param/%s/set", t.root(), device, param)
}

// Command returns the request topic for a device command.
//
// Example: graysim/device/chopper-1/cmd/start
func (t Topics) Command(device, command string) string {
	return fmt.Sprintf("%s/device/%s/cmd/%s", t.root(), device, command)
}

// Result returns the reply topic for a device's command and write results.
//
// Example: graysim/device/chopper-1/result
func (t Topics) Result(device string) string {
	return fmt.Sprintf("%s/device/%s/result", t.root(), device)
}

// DeviceState returns the retained topic carrying a device's current
// state machine state.
//
// Example: graysim/device/boiler-1/state
func (t Topics) DeviceState(device string) string {
	return fmt.Sprintf("%s/device/%s/state", t.root(), device)
}

// AllParamSets returns a pattern matching every parameter write request.
//
// Pattern: graysim/device/+/param/+/set
func (t Topics) AllParamSets() string {
	return fmt.Sprintf("%s/device/+/param/+/set", t.root())
}

// AllCommands returns a pattern matching every command request.
//
// Pattern: graysim/device/+/cmd/+
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/device/+/cmd/+", t.root())
}

// AllTopics returns a pattern matching the whole simulator tree.
// Use with caution, this receives ALL traffic.
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}
