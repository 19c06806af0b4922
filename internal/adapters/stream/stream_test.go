package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-sim-core/internal/adapters"
	"github.com/nerrad567/gray-sim-core/internal/device"
	"github.com/nerrad567/gray-sim-core/internal/statemachine"
)

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
			if v < 0 || v > 100 {
				return fmt.Errorf("out of range: %v", v)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("AddParameter: %v", err)
	}
	if err := d.AddCommand("double", func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, errors.New("double takes one argument")
		}
		return args[0] * 2, nil
	}); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}
	return d
}

// startAdapter runs the adapter on an ephemeral port and returns its
// address. Cleanup stops the adapter and waits for Start to return.
func startAdapter(t *testing.T, dir DeviceDirectory) string {
	t.Helper()

	a := New(Config{Host: "127.0.0.1", Port: 0}, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	var addr net.Addr
	for i := 0; i < 100; i++ {
		if addr = a.Addr(); addr != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("adapter did not bind")
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
	return addr.String()
}

func roundTrip(t *testing.T, rw *bufio.ReadWriter, request string) string {
	t.Helper()

	if _, err := rw.WriteString(request + "\r\n"); err != nil {
		t.Fatalf("write %q: %v", request, err)
	}
	if err := rw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line, err := rw.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", request, err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestAdapter_Protocol(t *testing.T) {
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev},
		order:   []*device.Device{dev},
	}
	addr := startAdapter(t, dir)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	tests := []struct {
		request string
		want    string
	}{
		{"GET boiler-1 target", "OK 20"},
		{"SET boiler-1 target 42.5", "OK"},
		{"GET boiler-1 target", "OK 42.5"},
		{"CMD boiler-1 double 21", "OK 42"},
		{"LIST", "OK boiler-1"},
		{"LIST boiler-1", "OK target"},
		{"get boiler-1 target", "OK 42.5"},
	}
	for _, tt := range tests {
		if got := roundTrip(t, rw, tt.request); got != tt.want {
			t.Errorf("%q reply = %q, want %q", tt.request, got, tt.want)
		}
	}
}

func TestAdapter_Errors(t *testing.T) {
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev},
		order:   []*device.Device{dev},
	}
	addr := startAdapter(t, dir)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	tests := []struct {
		name    string
		request string
	}{
		{"unknown device", "GET ghost target"},
		{"unknown parameter", "GET boiler-1 ghost"},
		{"rejected write", "SET boiler-1 target 500"},
		{"bad value", "SET boiler-1 target banana"},
		{"unknown command", "CMD boiler-1 explode"},
		{"bad argument", "CMD boiler-1 double banana"},
		{"unknown verb", "HALT boiler-1"},
		{"missing fields", "GET boiler-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, rw, tt.request)
			if !strings.HasPrefix(got, "ERR ") {
				t.Errorf("%q reply = %q, want ERR prefix", tt.request, got)
			}
		})
	}

	// A rejected write must leave the value untouched.
	if got := roundTrip(t, rw, "GET boiler-1 target"); got != "OK 20" {
		t.Errorf("value after rejected write = %q, want OK 20", got)
	}
}

func TestAdapter_DisconnectedDevice(t *testing.T) {
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev},
		order:   []*device.Device{dev},
	}
	addr := startAdapter(t, dir)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	dev.SetConnected(false)
	if got := roundTrip(t, rw, "GET boiler-1 target"); !strings.Contains(got, "disconnected") {
		t.Errorf("reply = %q, want disconnected error", got)
	}

	dev.SetConnected(true)
	if got := roundTrip(t, rw, "GET boiler-1 target"); got != "OK 20" {
		t.Errorf("reply after reconnect = %q, want OK 20", got)
	}
}

func TestAdapter_BindError(t *testing.T) {
	dir := &stubDirectory{devices: map[string]*device.Device{}}
	addr := startAdapter(t, dir)

	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	second := New(Config{Host: "127.0.0.1", Port: port}, dir, nil)
	if err := second.Start(context.Background()); !errors.Is(err, adapters.ErrBind) {
		t.Errorf("Start() on occupied port error = %v, want ErrBind", err)
	}
}

func TestAdapter_StopDrainsConnections(t *testing.T) {
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev},
		order:   []*device.Device{dev},
	}

	a := New(Config{Host: "127.0.0.1", Port: 0}, dir, nil)
	done := make(chan error, 1)
	go func() { done <- a.Start(context.Background()) }()

	var addr net.Addr
	for i := 0; i < 100; i++ {
		if addr = a.Addr(); addr != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("adapter did not bind")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if got := roundTrip(t, rw, "GET boiler-1 target"); got != "OK 20" {
		t.Fatalf("reply = %q, want OK 20", got)
	}

	// Stop must close the idle connection itself rather than wait for the
	// client, and must not return before its handler has exited.
	stopped := make(chan error, 1)
	go func() { stopped <- a.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return with a live connection open")
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := rw.ReadString('\n'); err == nil {
		t.Error("read after Stop() succeeded, want closed connection")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Start() did not return after Stop()")
	}
}

func TestAdapter_ConcurrentClients(t *testing.T) {
	dev := newTestDevice(t, "boiler-1")
	dir := &stubDirectory{
		devices: map[string]*device.Device{"boiler-1": dev},
		order:   []*device.Device{dev},
	}
	addr := startAdapter(t, dir)

	const clients = 5
	errc := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				errc <- err
				return
			}
			defer conn.Close()
			rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
			for j := 0; j < 50; j++ {
				if _, err := rw.WriteString("GET boiler-1 target\r\n"); err != nil {
					errc <- err
					return
				}
				if err := rw.Flush(); err != nil {
					errc <- err
					return
				}
				line, err := rw.ReadString('\n')
				if err != nil {
					errc <- err
					return
				}
				if !strings.HasPrefix(line, "OK ") {
					errc <- fmt.Errorf("unexpected reply %q", line)
					return
				}
			}
			errc <- nil
		}()
	}
	for i := 0; i < clients; i++ {
		if err := <-errc; err != nil {
			t.Errorf("client error: %v", err)
		}
	}
}
