package devices

import (
	"fmt"

	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// Temperature controller defaults.
const (
	tempAmbient        = 20.0
	tempDefaultTarget  = 20.0
	tempDefaultHeating = 40.0
	tempDefaultCooling = 10.0
	tempDefaultMax     = 200.0
)

// newTempControl builds a heater with a temperature setpoint.
//
// States:
//   - idle: drifts toward ambient temperature at cooling_rate
//   - heating: rises at heating_rate while power is on and below target
//   - error: entered when temperature reaches max_temperature; the heater
//     latches off until the reset command clears the fault
func newTempControl(name string) (*device.Device, error) {
	var d *device.Device

	approach := func(current, goal, step float64) float64 {
		if current > goal {
			if current-step < goal {
				return goal
			}
			return current - step
		}
		if current+step > goal {
			return goal
		}
		return current + step
	}

	b := statemachine.NewBuilder("idle")

	b.AddState("idle", statemachine.Handlers{
		InState: func(delta float64) error {
			temp := d.Value("temperature")
			d.SetValue("temperature", approach(temp, tempAmbient, d.Value("cooling_rate")*delta))
			return nil
		},
	})

	b.AddState("heating", statemachine.Handlers{
		InState: func(delta float64) error {
			temp := d.Value("temperature")
			d.SetValue("temperature", approach(temp, d.Value("target"), d.Value("heating_rate")*delta))
			return nil
		},
	})

	b.AddState("error", statemachine.Handlers{
		OnEntry: func(float64) error {
			d.SetValue("fault", 1)
			d.SetValue("power", 0)
			return nil
		},
	})

	b.Transition("idle", "heating", func(float64) (bool, error) {
		return d.Value("power") == 1 && d.Value("temperature") < d.Value("target"), nil
	})
	b.Transition("heating", "idle", func(float64) (bool, error) {
		return d.Value("power") == 0 || d.Value("temperature") >= d.Value("target"), nil
	})
	b.Transition("heating", "error", func(float64) (bool, error) {
		return d.Value("temperature") >= d.Value("max_temperature"), nil
	})
	b.Transition("error", "idle", func(float64) (bool, error) {
		return d.Value("fault") == 0, nil
	})

	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	d, err = device.New(name, "tempcontrol", m)
	if err != nil {
		return nil, err
	}

	params := []device.Parameter{
		{Name: "temperature", Initial: tempAmbient},
		{Name: "target", Initial: tempDefaultTarget, Validate: rangeValidator(0, 500)},
		{Name: "heating_rate", Initial: tempDefaultHeating, Validate: positiveValidator},
		{Name: "cooling_rate", Initial: tempDefaultCooling, Validate: positiveValidator},
		{Name: "max_temperature", Initial: tempDefaultMax, Validate: positiveValidator},
		{Name: "power", Initial: 0, Validate: switchValidator},
		{Name: "fault", Initial: 0},
	}
	for _, p := range params {
		if err := d.AddParameter(p); err != nil {
			return nil, err
		}
	}

	err = d.AddCommand("reset", func([]float64) (float64, error) {
		d.SetValue("fault", 0)
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}

// rangeValidator rejects values outside [low, high].
func rangeValidator(low, high float64) device.Validator {
	return func(v float64) error {
		if v < low || v > high {
			return fmt.Errorf("value %g outside range [%g, %g]", v, low, high)
		}
		return nil
	}
}

// positiveValidator rejects values that are not strictly positive.
func positiveValidator(v float64) error {
	if v <= 0 {
		return fmt.Errorf("value %g must be positive", v)
	}
	return nil
}

// switchValidator accepts only 0 and 1.
func switchValidator(v float64) error {
	if v != 0 && v != 1 {
		return fmt.Errorf("value %g must be 0 or 1", v)
	}
	return nil
}
