package device

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

func newTestMachine(t *testing.T) *statemachine.Machine {
	t.Helper()
	m, err := statemachine.NewBuilder("idle").Build()
	if err != nil {
		t.Fatalf("building machine: %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		d, err := New("boiler-1", "boiler", newTestMachine(t))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if d.Name() != "boiler-1" {
			t.Errorf("Name() = %q, want boiler-1", d.Name())
		}
		if d.Model() != "boiler" {
			t.Errorf("Model() = %q, want boiler", d.Model())
		}
		if !d.Connected() {
			t.Error("new device should be connected")
		}
	})

	t.Run("empty name", func(t *testing.T) {
		if _, err := New("", "boiler", newTestMachine(t)); !errors.Is(err, ErrEmptyName) {
			t.Errorf("New() error = %v, want ErrEmptyName", err)
		}
	})

	t.Run("nil machine", func(t *testing.T) {
		if _, err := New("boiler-1", "boiler", nil); !errors.Is(err, ErrNilMachine) {
			t.Errorf("New() error = %v, want ErrNilMachine", err)
		}
	})
}

func TestDevice_GetSet(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.AddParameter(Parameter{Name: "target", Initial: 20}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}

	got, err := d.Get("target")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 20 {
		t.Errorf("Get() = %v, want 20", got)
	}

	if err := d.Set("target", 50); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := d.Get("target"); got != 50 {
		t.Errorf("Get() after Set = %v, want 50", got)
	}

	if _, err := d.Get("missing"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Get(missing) error = %v, want ErrUnknownParameter", err)
	}
	if err := d.Set("missing", 1); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Set(missing) error = %v, want ErrUnknownParameter", err)
	}
}

func TestDevice_SetValidation(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	changes := 0
	err = d.AddParameter(Parameter{
		Name:    "target",
		Initial: 20,
		Validate: func(v float64) error {
			if v < 0 || v > 100 {
				return fmt.Errorf("out of range [0,100]: %v", v)
			}
			return nil
		},
		OnChange: func(old, new float64) { changes++ },
	})
	if err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}

	// Rejected write: value untouched, hook not fired.
	if err := d.Set("target", 150); !errors.Is(err, ErrValidation) {
		t.Errorf("Set(150) error = %v, want ErrValidation", err)
	}
	if got, _ := d.Get("target"); got != 20 {
		t.Errorf("value after rejected write = %v, want 20", got)
	}
	if changes != 0 {
		t.Errorf("change hook fired %d times after rejected write, want 0", changes)
	}

	// Accepted write fires the hook once.
	if err := d.Set("target", 80); err != nil {
		t.Fatalf("Set(80) error = %v", err)
	}
	if changes != 1 {
		t.Errorf("change hook fired %d times, want 1", changes)
	}

	// Writing the same value again is not a change.
	if err := d.Set("target", 80); err != nil {
		t.Fatalf("Set(80) repeat error = %v", err)
	}
	if changes != 1 {
		t.Errorf("change hook fired %d times after no-op write, want 1", changes)
	}
}

func TestDevice_ChangeHookCascade(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.AddParameter(Parameter{Name: "writes", Initial: 0}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}
	err = d.AddParameter(Parameter{
		Name: "target",
		OnChange: func(old, new float64) {
			// Hooks run under the lock and may touch siblings via SetValue.
			d.SetValue("writes", d.Value("writes")+1)
		},
	})
	if err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}

	if err := d.Set("target", 5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := d.Get("writes"); got != 1 {
		t.Errorf("writes = %v, want 1", got)
	}
}

func TestDevice_DuplicateRegistration(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.AddParameter(Parameter{Name: "p"}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}
	if err := d.AddParameter(Parameter{Name: "p"}); !errors.Is(err, ErrDuplicateParameter) {
		t.Errorf("duplicate AddParameter() error = %v, want ErrDuplicateParameter", err)
	}

	cmd := func([]float64) (float64, error) { return 0, nil }
	if err := d.AddCommand("reset", cmd); err != nil {
		t.Fatalf("AddCommand() error = %v", err)
	}
	if err := d.AddCommand("reset", cmd); !errors.Is(err, ErrDuplicateCommand) {
		t.Errorf("duplicate AddCommand() error = %v, want ErrDuplicateCommand", err)
	}
}

func TestDevice_Call(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.AddParameter(Parameter{Name: "level", Initial: 42}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}
	err = d.AddCommand("reset", func(args []float64) (float64, error) {
		old := d.Value("level")
		d.SetValue("level", 0)
		return old, nil
	})
	if err != nil {
		t.Fatalf("AddCommand() error = %v", err)
	}

	got, err := d.Call("reset")
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Call() = %v, want 42", got)
	}
	if level, _ := d.Get("level"); level != 0 {
		t.Errorf("level after reset = %v, want 0", level)
	}

	if _, err := d.Call("missing"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Call(missing) error = %v, want ErrUnknownCommand", err)
	}
}

func TestDevice_ApplySetup(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	hookFired := false
	err = d.AddParameter(Parameter{
		Name:    "target",
		Initial: 20,
		Validate: func(v float64) error {
			if v < 0 {
				return errors.New("negative")
			}
			return nil
		},
		OnChange: func(old, new float64) { hookFired = true },
	})
	if err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}

	if err := d.ApplySetup(map[string]float64{"target": 35}); err != nil {
		t.Fatalf("ApplySetup() error = %v", err)
	}
	if got, _ := d.Get("target"); got != 35 {
		t.Errorf("target = %v, want 35", got)
	}
	if hookFired {
		t.Error("change hook fired during setup")
	}

	if err := d.ApplySetup(map[string]float64{"target": -5}); !errors.Is(err, ErrValidation) {
		t.Errorf("ApplySetup(-5) error = %v, want ErrValidation", err)
	}
	if err := d.ApplySetup(map[string]float64{"ghost": 1}); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("ApplySetup(ghost) error = %v, want ErrUnknownParameter", err)
	}
}

func TestDevice_ProcessDrivesMachine(t *testing.T) {
	m, err := statemachine.NewBuilder("idle").
		AddState("heating", statemachine.Handlers{}).
		Transition("idle", "heating", func(float64) (bool, error) { return true, nil }).
		Build()
	if err != nil {
		t.Fatalf("building machine: %v", err)
	}
	d, err := New("dev", "model", m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := d.Process(0.1); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if d.State() != "heating" {
		t.Errorf("State() = %q, want heating", d.State())
	}
}

func TestDevice_Snapshot(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, p := range []Parameter{
		{Name: "a", Initial: 1},
		{Name: "b", Initial: 2},
	} {
		if err := d.AddParameter(p); err != nil {
			t.Fatalf("AddParameter(%s) error = %v", p.Name, err)
		}
	}

	snap := d.Snapshot()
	if snap["a"] != 1 || snap["b"] != 2 {
		t.Errorf("Snapshot() = %v, want map[a:1 b:2]", snap)
	}

	// The snapshot is a copy.
	snap["a"] = 99
	if got, _ := d.Get("a"); got != 1 {
		t.Errorf("a = %v after mutating snapshot, want 1", got)
	}

	names := d.ParameterNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("ParameterNames() = %v, want [a b]", names)
	}
}

func TestDevice_Connected(t *testing.T) {
	d, err := New("dev", "model", newTestMachine(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	d.SetConnected(false)
	if d.Connected() {
		t.Error("Connected() = true after SetConnected(false)")
	}
	d.SetConnected(true)
	if !d.Connected() {
		t.Error("Connected() = false after SetConnected(true)")
	}
}

func TestDevice_ConcurrentAccess(t *testing.T) {
	// Handlers mutate "level" every cycle while adapter goroutines hammer
	// Get/Set/Call. Run with -race to verify the lock covers everything.
	var d *Device
	m, err := statemachine.NewBuilder("running").
		InState("running", func(delta float64) error {
			d.SetValue("level", d.Value("level")+delta)
			return nil
		}).
		Build()
	if err != nil {
		t.Fatalf("building machine: %v", err)
	}
	d, err = New("dev", "model", m)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.AddParameter(Parameter{Name: "level"}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}
	if err := d.AddParameter(Parameter{Name: "target", Initial: 10}); err != nil {
		t.Fatalf("AddParameter() error = %v", err)
	}
	if err := d.AddCommand("status", func([]float64) (float64, error) {
		return d.Value("level"), nil
	}); err != nil {
		t.Fatalf("AddCommand() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := d.Process(0.01); err != nil {
				t.Errorf("Process() error = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := d.Get("level"); err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			if err := d.Set("target", float64(i)); err != nil {
				t.Errorf("Set() error = %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := d.Call("status"); err != nil {
				t.Errorf("Call() error = %v", err)
				return
			}
			_ = d.Snapshot()
		}
	}()

	wg.Wait()
}
