// Package stream serves devices over a line-oriented TCP protocol.
//
// Each request is a single line:
//
//	GET <device> <parameter>
//	SET <device> <parameter> <value>
//	CMD <device> <command> [args...]
//	LIST
//	LIST <device>
//
// Replies are "OK", "OK <value>" or "ERR <reason>", terminated the same
// way as requests. Every connection is served on its own goroutine; the
// device's own lock serialises access against the simulation loop.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-sim-core/internal/adapters"
	"github.com/nerrad567/gray-sim-core/internal/device"
)

// ErrDisconnected is returned for requests to a device whose simulated
// connection has been severed.
var ErrDisconnected = errors.New("stream: device disconnected")

// DeviceDirectory resolves device names to devices. The engine satisfies
// this interface.
type DeviceDirectory interface {
	Device(name string) (*device.Device, error)
	Devices() []*device.Device
}

// Config holds the stream adapter's listener settings.
type Config struct {
	Host string
	Port int

	// Terminator ends every request and reply line. Defaults to "\r\n".
	Terminator string

	// IdleTimeout closes connections with no traffic. Zero disables it.
	IdleTimeout time.Duration
}

// Adapter is a TCP line-protocol frontend over a device directory.
type Adapter struct {
	cfg     Config
	devices DeviceDirectory
	log     Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New creates a stream adapter. The listener is not bound until Start.
func New(cfg Config, devices DeviceDirectory, logger Logger) *Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.Terminator == "" {
		cfg.Terminator = "\r\n"
	}
	return &Adapter{cfg: cfg, devices: devices, log: logger, conns: make(map[net.Conn]struct{})}
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "stream" }

// Start binds the TCP listener and serves connections until ctx is
// cancelled. A failed bind is reported immediately.
func (a *Adapter) Start(ctx context.Context) error {
	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", adapters.ErrBind, addr, err)
	}

	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	a.log.Info("stream adapter listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = a.Stop()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed: drain handlers and exit cleanly.
			a.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("stream: accept: %w", err)
		}

		a.mu.Lock()
		if a.ln == nil {
			// Stopped between Accept and tracking.
			a.mu.Unlock()
			_ = conn.Close()
			continue
		}
		a.conns[conn] = struct{}{}
		a.mu.Unlock()

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.untrack(conn)
			a.handleConn(conn)
		}()
	}
}

func (a *Adapter) untrack(conn net.Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
}

// Addr returns the bound listener address, or nil before Start.
func (a *Adapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Stop closes the listener and every live connection, then blocks until
// all connection handlers have returned.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	ln := a.ln
	a.ln = nil
	conns := make([]net.Conn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}
	a.wg.Wait()
	return err
}

func (a *Adapter) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	a.log.Debug("client connected", "remote", remote)

	scanner := bufio.NewScanner(conn)
	for {
		if a.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(a.cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply := a.dispatch(line)
		if _, err := fmt.Fprint(conn, reply, a.cfg.Terminator); err != nil {
			break
		}
	}

	a.log.Debug("client disconnected", "remote", remote)
}

// dispatch parses one request line and returns the reply without its
// terminator.
func (a *Adapter) dispatch(line string) string {
	fields := strings.Fields(line)
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "GET":
		if len(fields) != 3 {
			return "ERR usage: GET <device> <parameter>"
		}
		return a.handleGet(fields[1], fields[2])

	case "SET":
		if len(fields) != 4 {
			return "ERR usage: SET <device> <parameter> <value>"
		}
		return a.handleSet(fields[1], fields[2], fields[3])

	case "CMD":
		if len(fields) < 3 {
			return "ERR usage: CMD <device> <command> [args...]"
		}
		return a.handleCmd(fields[1], fields[2], fields[3:])

	case "LIST":
		switch len(fields) {
		case 1:
			return a.handleListDevices()
		case 2:
			return a.handleListParams(fields[1])
		default:
			return "ERR usage: LIST [device]"
		}

	default:
		return fmt.Sprintf("ERR unknown verb %q", verb)
	}
}

func (a *Adapter) lookup(name string) (*device.Device, error) {
	d, err := a.devices.Device(name)
	if err != nil {
		return nil, err
	}
	if !d.Connected() {
		return nil, ErrDisconnected
	}
	return d, nil
}

func (a *Adapter) handleGet(dev, param string) string {
	d, err := a.lookup(dev)
	if err != nil {
		return errReply(err)
	}
	v, err := d.Get(param)
	if err != nil {
		return errReply(err)
	}
	return "OK " + formatValue(v)
}

func (a *Adapter) handleSet(dev, param, raw string) string {
	d, err := a.lookup(dev)
	if err != nil {
		return errReply(err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Sprintf("ERR invalid value %q", raw)
	}
	if err := d.Set(param, v); err != nil {
		return errReply(err)
	}
	return "OK"
}

func (a *Adapter) handleCmd(dev, cmd string, rawArgs []string) string {
	d, err := a.lookup(dev)
	if err != nil {
		return errReply(err)
	}
	args := make([]float64, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Sprintf("ERR invalid argument %q", raw)
		}
		args[i] = v
	}
	result, err := d.Call(cmd, args...)
	if err != nil {
		return errReply(err)
	}
	return "OK " + formatValue(result)
}

func (a *Adapter) handleListDevices() string {
	names := make([]string, 0)
	for _, d := range a.devices.Devices() {
		names = append(names, d.Name())
	}
	return "OK " + strings.Join(names, " ")
}

func (a *Adapter) handleListParams(dev string) string {
	d, err := a.lookup(dev)
	if err != nil {
		return errReply(err)
	}
	return "OK " + strings.Join(d.ParameterNames(), " ")
}

func errReply(err error) string {
	return "ERR " + err.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
