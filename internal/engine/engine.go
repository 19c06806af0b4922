package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/gray-sim-core/internal/device"
)

// State is the engine's lifecycle state.
type State string

// Engine lifecycle states.
const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// CycleInfo describes one completed simulation cycle. It is handed to
// cycle hooks after every device has been processed.
type CycleInfo struct {
	Cycle   uint64
	Delta   float64
	Runtime float64
}

// CycleFunc is invoked after each cycle, outside the device locks.
// Hooks run on the engine goroutine and should return quickly.
type CycleFunc func(CycleInfo)

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State      State         `json:"state"`
	Cycles     uint64        `json:"cycles"`
	Runtime    float64       `json:"runtime"`
	Uptime     float64       `json:"uptime"`
	Speed      float64       `json:"speed"`
	CycleDelay time.Duration `json:"cycle_delay"`
}

// Config holds the engine's timing parameters.
type Config struct {
	// CycleDelay is the wall-clock target between cycle starts. Zero runs
	// cycles back to back.
	CycleDelay time.Duration

	// Speed scales wall-clock time into simulated time. Must be > 0.
	Speed float64

	// MaxCycles stops the engine after this many cycles. Zero means no limit.
	MaxCycles uint64

	// MaxRuntime stops the engine once simulated time reaches this many
	// seconds. Zero means no limit.
	MaxRuntime float64
}

// Engine drives registered devices through simulation cycles. Each cycle
// measures wall-clock time since the previous cycle, scales it by the
// speed factor and hands the resulting delta to every device in
// registration order. The first cycle always uses a delta of zero.
//
// Run blocks until the engine stops. Pause, Resume, Stop, SetSpeed and
// Status are safe to call from other goroutines.
type Engine struct {
	log Logger

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	speed      float64
	cycleDelay time.Duration
	maxCycles  uint64
	maxRuntime float64
	cycles     uint64
	runtime    float64
	uptime     time.Duration
	stopReq    bool

	devices []*device.Device
	byName  map[string]*device.Device
	hooks   []CycleFunc
}

// New creates an engine with the given timing configuration.
func New(cfg Config, logger Logger) (*Engine, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Speed <= 0 || math.IsNaN(cfg.Speed) || math.IsInf(cfg.Speed, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpeed, cfg.Speed)
	}
	if cfg.CycleDelay < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCycleDelay, cfg.CycleDelay)
	}
	e := &Engine{
		log:        logger,
		state:      StateStopped,
		speed:      cfg.Speed,
		cycleDelay: cfg.CycleDelay,
		maxCycles:  cfg.MaxCycles,
		maxRuntime: cfg.MaxRuntime,
		byName:     make(map[string]*device.Device),
	}
	e.cond = sync.NewCond(&e.mu)
	return e, nil
}

// AddDevice registers a device. Devices are processed in registration
// order every cycle. Registration is only allowed while stopped.
func (e *Engine) AddDevice(d *device.Device) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateStopped {
		return ErrNotStopped
	}
	if _, exists := e.byName[d.Name()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateDevice, d.Name())
	}
	e.devices = append(e.devices, d)
	e.byName[d.Name()] = d
	return nil
}

// Device looks up a registered device by name.
func (e *Engine) Device(name string) (*device.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return d, nil
}

// Devices returns all registered devices in registration order.
func (e *Engine) Devices() []*device.Device {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*device.Device, len(e.devices))
	copy(out, e.devices)
	return out
}

// OnCycle registers a hook invoked after every cycle. Register before Run.
func (e *Engine) OnCycle(fn CycleFunc) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Run executes the simulation loop until the context is cancelled, Stop
// is called, a configured limit is reached, or a device fails. A device
// failure is reported through the returned error; every other exit
// returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = StateRunning
	e.stopReq = false
	e.mu.Unlock()

	// Wake the pause wait when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.cond.Broadcast()
		case <-done:
		}
	}()

	e.log.Info("simulation started",
		"devices", len(e.devices),
		"speed", e.speed,
		"cycle_delay", e.cycleDelay.String(),
	)

	defer func() {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		e.log.Info("simulation stopped",
			"cycles", e.cycles,
			"runtime", e.runtime,
		)
	}()

	first := true
	var last time.Time

	for {
		e.mu.Lock()
		paused := false
		for e.state == StatePaused && !e.stopReq && ctx.Err() == nil {
			paused = true
			e.cond.Wait()
		}
		if e.stopReq || ctx.Err() != nil {
			e.mu.Unlock()
			return nil
		}
		speed := e.speed
		delay := e.cycleDelay
		hooks := e.hooks
		e.mu.Unlock()

		start := time.Now()

		// Paused wall-clock time never reaches the simulation.
		if paused {
			last = start
		}

		var elapsed time.Duration
		if first {
			first = false
		} else {
			elapsed = start.Sub(last)
		}
		last = start
		delta := elapsed.Seconds() * speed

		for _, d := range e.devices {
			if err := d.Process(delta); err != nil {
				e.log.Error("device cycle failed",
					"device", d.Name(),
					"cycle", e.cycles+1,
					"error", err,
				)
				return fmt.Errorf("%w: %q: %w", ErrDeviceFailed, d.Name(), err)
			}
		}

		e.mu.Lock()
		e.cycles++
		e.runtime += delta
		e.uptime += elapsed
		info := CycleInfo{Cycle: e.cycles, Delta: delta, Runtime: e.runtime}
		limitHit := (e.maxCycles > 0 && e.cycles >= e.maxCycles) ||
			(e.maxRuntime > 0 && e.runtime >= e.maxRuntime)
		e.mu.Unlock()

		for _, h := range hooks {
			h(info)
		}

		if limitHit {
			e.log.Info("simulation limit reached",
				"cycles", info.Cycle,
				"runtime", info.Runtime,
			)
			return nil
		}

		if sleep := delay - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
		}
	}
}

// Pause suspends cycle processing. The in-flight cycle completes first,
// and wall-clock time spent paused never advances simulated time.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePaused:
		return ErrAlreadyPaused
	case StateStopped:
		return ErrNotRunning
	}
	e.state = StatePaused
	e.log.Info("simulation paused", "cycles", e.cycles)
	return nil
}

// Resume continues cycle processing after a Pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return ErrNotPaused
	}
	e.state = StateRunning
	e.cond.Broadcast()
	e.log.Info("simulation resumed", "cycles", e.cycles)
	return nil
}

// Stop requests the loop to exit. The in-flight cycle drains before Run
// returns. Stopping a stopped engine is an error.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateStopped {
		return ErrNotRunning
	}
	e.stopReq = true
	e.cond.Broadcast()
	return nil
}

// SetSpeed changes the speed factor for subsequent cycles.
func (e *Engine) SetSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	e.log.Info("speed changed", "speed", speed)
	return nil
}

// SetCycleDelay changes the wall-clock target between cycles.
func (e *Engine) SetCycleDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCycleDelay, d)
	}
	e.mu.Lock()
	e.cycleDelay = d
	e.mu.Unlock()
	e.log.Info("cycle delay changed", "cycle_delay", d.String())
	return nil
}

// Status returns a snapshot of the engine's counters and settings.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		State:      e.state,
		Cycles:     e.cycles,
		Runtime:    e.runtime,
		Uptime:     e.uptime.Seconds(),
		Speed:      e.speed,
		CycleDelay: e.cycleDelay,
	}
}
