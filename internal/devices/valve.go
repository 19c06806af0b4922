package devices

import (
	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// Valve defaults.
const (
	valveDefaultRate = 0.5
	valveDefaultFlow = 100.0
)

// newValve builds a proportional valve that travels toward its setpoint.
//
// Position runs from 0 (seated) to 1 (fully open); flow is position scaled
// by max_flow.
//
// States:
//   - closed: seated, no flow
//   - moving: actuator travelling toward the setpoint
//   - open: holding a non-zero setpoint
func newValve(name string) (*device.Device, error) {
	var d *device.Device

	b := statemachine.NewBuilder("closed").
		OnEntry("closed", func(float64) error {
			d.SetValue("flow", 0)
			return nil
		}).
		InState("moving", func(delta float64) error {
			pos := d.Value("position")
			setpoint := d.Value("setpoint")
			step := d.Value("transit_rate") * delta

			switch {
			case pos < setpoint && pos+step >= setpoint:
				pos = setpoint
			case pos > setpoint && pos-step <= setpoint:
				pos = setpoint
			case pos < setpoint:
				pos += step
			default:
				pos -= step
			}
			d.SetValue("position", pos)
			d.SetValue("flow", pos*d.Value("max_flow"))
			return nil
		}).
		OnExit("moving", func(float64) error {
			// Snap flow to the settled position on arrival.
			d.SetValue("flow", d.Value("position")*d.Value("max_flow"))
			return nil
		}).
		AddState("open", statemachine.Handlers{})

	b.Transition("closed", "moving", func(float64) (bool, error) {
		return d.Value("setpoint") > 0, nil
	})
	b.Transition("moving", "open", func(float64) (bool, error) {
		return d.Value("position") == d.Value("setpoint") && d.Value("setpoint") > 0, nil
	})
	b.Transition("moving", "closed", func(float64) (bool, error) {
		return d.Value("position") == 0 && d.Value("setpoint") == 0, nil
	})
	b.Transition("open", "moving", func(float64) (bool, error) {
		return d.Value("position") != d.Value("setpoint"), nil
	})

	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	d, err = device.New(name, "valve", m)
	if err != nil {
		return nil, err
	}

	params := []device.Parameter{
		{Name: "position", Initial: 0},
		{Name: "setpoint", Initial: 0, Validate: rangeValidator(0, 1)},
		{Name: "transit_rate", Initial: valveDefaultRate, Validate: positiveValidator},
		{Name: "max_flow", Initial: valveDefaultFlow, Validate: positiveValidator},
		{Name: "flow", Initial: 0},
	}
	for _, p := range params {
		if err := d.AddParameter(p); err != nil {
			return nil, err
		}
	}

	return d, nil
}
