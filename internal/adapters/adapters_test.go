package adapters

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Name() string                    { return s.name }
func (s *stubAdapter) Start(ctx context.Context) error { <-ctx.Done(); return nil }
func (s *stubAdapter) Stop() error                     { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("stream", func() (Adapter, error) {
		return &stubAdapter{name: "stream"}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("mqtt", func() (Adapter, error) {
		return &stubAdapter{name: "mqtt"}, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := r.Register("stream", func() (Adapter, error) { return nil, nil }); !errors.Is(err, ErrDuplicateProtocol) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateProtocol", err)
	}

	a, err := r.New("stream")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Name() != "stream" {
		t.Errorf("Name() = %q, want stream", a.Name())
	}

	if _, err := r.New("modbus"); !errors.Is(err, ErrUnknownProtocol) {
		t.Errorf("New(modbus) error = %v, want ErrUnknownProtocol", err)
	}

	if got, want := r.Protocols(), []string{"mqtt", "stream"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Protocols() = %v, want %v", got, want)
	}
}
