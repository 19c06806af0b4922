package devices

import (
	"math"

	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

// Chopper defaults.
const (
	chopperDefaultAccel = 100.0
	chopperMaxSpeed     = 6000.0
)

// chopperHandlers groups the disc speed dynamics for the chopper model.
type chopperHandlers struct {
	d *device.Device
}

// StateHandlers declares the chopper's full state table. Locked has no
// dynamics; the disc just holds speed until retargeted or stopped.
func (h *chopperHandlers) StateHandlers() map[statemachine.State]statemachine.Handlers {
	return map[statemachine.State]statemachine.Handlers{
		"stopped":      {},
		"accelerating": {InState: h.ramp},
		"locked":       {},
		"stopping":     {InState: h.coast},
	}
}

// ramp moves the disc speed toward the commanded speed.
func (h *chopperHandlers) ramp(delta float64) error {
	speed := h.d.Value("speed")
	target := h.d.Value("target_speed")
	step := h.d.Value("acceleration") * delta

	if math.Abs(target-speed) <= step {
		h.d.SetValue("speed", target)
		return nil
	}
	if target > speed {
		h.d.SetValue("speed", speed+step)
	} else {
		h.d.SetValue("speed", speed-step)
	}
	return nil
}

// coast spins the disc down toward rest.
func (h *chopperHandlers) coast(delta float64) error {
	speed := h.d.Value("speed")
	step := h.d.Value("acceleration") * delta
	if speed <= step {
		h.d.SetValue("speed", 0)
		return nil
	}
	h.d.SetValue("speed", speed-step)
	return nil
}

// newChopper builds a disc chopper that ramps between commanded speeds.
//
// States:
//   - stopped: disc at rest
//   - accelerating: disc ramping toward target_speed
//   - locked: disc holding target_speed
//   - stopping: disc coasting down after the stop command
func newChopper(name string) (*device.Device, error) {
	h := &chopperHandlers{}

	b := statemachine.NewBuilder("stopped").Bind(h)

	b.Transition("stopped", "accelerating", func(float64) (bool, error) {
		return h.d.Value("run") == 1 && h.d.Value("target_speed") > 0, nil
	})
	b.Transition("accelerating", "locked", func(float64) (bool, error) {
		return h.d.Value("speed") == h.d.Value("target_speed"), nil
	})
	b.Transition("accelerating", "stopping", func(float64) (bool, error) {
		return h.d.Value("run") == 0, nil
	})
	b.Transition("locked", "accelerating", func(float64) (bool, error) {
		return h.d.Value("speed") != h.d.Value("target_speed"), nil
	})
	b.Transition("locked", "stopping", func(float64) (bool, error) {
		return h.d.Value("run") == 0, nil
	})
	b.Transition("stopping", "stopped", func(float64) (bool, error) {
		return h.d.Value("speed") == 0, nil
	})

	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	d, err := device.New(name, "chopper", m)
	if err != nil {
		return nil, err
	}
	h.d = d

	params := []device.Parameter{
		{Name: "speed", Initial: 0},
		{Name: "target_speed", Initial: 0, Validate: rangeValidator(0, chopperMaxSpeed)},
		{Name: "acceleration", Initial: chopperDefaultAccel, Validate: positiveValidator},
		{Name: "run", Initial: 0, Validate: switchValidator},
	}
	for _, p := range params {
		if err := d.AddParameter(p); err != nil {
			return nil, err
		}
	}

	err = d.AddCommand("start", func([]float64) (float64, error) {
		d.SetValue("run", 1)
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	err = d.AddCommand("stop", func([]float64) (float64, error) {
		d.SetValue("run", 0)
		return 0, nil
	})
	if err != nil {
		return nil, err
	}

	return d, nil
}
