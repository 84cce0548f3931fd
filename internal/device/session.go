// Package device implements the audio-source session: discovery,
// connection and teardown of one external device at a time.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atcscribe/atcscribe-core/internal/bus"
	"github.com/atcscribe/atcscribe-core/internal/config"
	"github.com/atcscribe/atcscribe-core/internal/fault"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

// State is the device session lifecycle state.
type State string

const (
	StateUnavailable  State = "unavailable"
	StateDisabled     State = "disabled"
	StateIdle         State = "idle"
	StateScanning     State = "scanning"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Session is the state machine over one Directory capability. It runs
// independently of the engine session; neither blocks the other.
type Session struct {
	cfg config.DeviceConfig
	dir Directory
	bus *bus.Client
	log *slog.Logger

	mu          sync.Mutex
	state       State
	devices     []protocol.AudioSource
	index       map[string]int
	connectedID string
	scanCancel  context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	clock  func() time.Time
}

func NewSession(parent context.Context, cfg config.DeviceConfig, dir Directory, busClient *bus.Client, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		cfg:    cfg,
		dir:    dir,
		bus:    busClient,
		log:    log.With(slog.String("component", "device-session")),
		state:  StateUnavailable,
		index:  make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
		clock:  time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Devices returns the current discovered-device snapshot.
func (s *Session) Devices() []protocol.AudioSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.AudioSource(nil), s.devices...)
}

// Initialize queries capability presence once and subscribes to power and
// disconnect signals for the process lifetime. An absent capability pins
// the session to unavailable for good.
func (s *Session) Initialize(ctx context.Context) error {
	available, err := s.dir.Available(ctx)
	if err != nil || !available {
		s.mu.Lock()
		s.setStateLocked(StateUnavailable, "", err)
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("query directory capability: %w", err)
		}
		return nil
	}

	powered, err := s.dir.Powered(ctx)
	if err != nil {
		powered = false
	}

	s.mu.Lock()
	if powered {
		s.setStateLocked(StateIdle, "", nil)
	} else {
		s.setStateLocked(StateDisabled, "", nil)
	}
	s.mu.Unlock()

	s.wg.Add(2)
	go s.watchPower()
	go s.watchDisconnects()
	return nil
}

func (s *Session) watchPower() {
	defer s.wg.Done()
	events := s.dir.PowerEvents()
	for {
		select {
		case <-s.ctx.Done():
			return
		case on, ok := <-events:
			if !ok {
				return
			}
			s.onPowerEvent(on)
		}
	}
}

func (s *Session) onPowerEvent(on bool) {
	s.mu.Lock()
	if s.state == StateUnavailable {
		s.mu.Unlock()
		return
	}
	if on {
		if s.state == StateDisabled {
			s.setStateLocked(StateIdle, "", nil)
		}
		s.mu.Unlock()
		return
	}
	// Power lost: abort whatever was in progress and settle in disabled.
	// A live connection goes through disconnected first so observers see
	// the teardown, and the published list stops reporting it connected.
	cancelScan := s.scanCancel
	s.scanCancel = nil
	var snapshot protocol.DeviceListSnapshot
	dropped := false
	if id := s.connectedID; id != "" {
		s.connectedID = ""
		s.markConnectedLocked(id, false)
		s.setStateLocked(StateDisconnected, id, nil)
		snapshot = s.snapshotLocked()
		dropped = true
	}
	s.setStateLocked(StateDisabled, "", nil)
	s.mu.Unlock()
	if cancelScan != nil {
		cancelScan()
	}
	if dropped {
		s.publishSnapshot(snapshot)
	}
}

func (s *Session) watchDisconnects() {
	defer s.wg.Done()
	events := s.dir.Disconnects()
	for {
		select {
		case <-s.ctx.Done():
			return
		case id, ok := <-events:
			if !ok {
				return
			}
			s.onUnsolicitedDisconnect(id)
		}
	}
}

func (s *Session) onUnsolicitedDisconnect(id string) {
	s.mu.Lock()
	if s.state != StateConnected || s.connectedID != id {
		s.mu.Unlock()
		return
	}
	s.connectedID = ""
	s.markConnectedLocked(id, false)
	s.setStateLocked(StateDisconnected, id, nil)
	s.setStateLocked(StateIdle, "", nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("device disconnected", slog.String("device", id))
	s.publishSnapshot(snapshot)
}

// StartScan clears prior discovery results and scans until the timeout
// elapses or StopScan is called, whichever comes first. The timeout is a
// cooperative deadline: discovery events already in flight may still land,
// but nothing new arrives once the session is back in idle.
func (s *Session) StartScan(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Duration(s.cfg.ScanTimeoutMS) * time.Millisecond
	}

	s.mu.Lock()
	switch s.state {
	case StateScanning:
		s.mu.Unlock()
		return fmt.Errorf("scan already running: %w", fault.ErrBusy)
	case StateIdle:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("start scan in state %s: %w", state, fault.ErrNotReady)
	}
	s.devices = nil
	s.index = make(map[string]int)
	scanCtx, cancel := context.WithTimeout(s.ctx, timeout)
	s.scanCancel = cancel
	s.setStateLocked(StateScanning, "", nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publishSnapshot(snapshot)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.dir.Scan(scanCtx, s.onDiscovered); err != nil && scanCtx.Err() == nil {
			s.log.Warn("scan failed", slog.String("error", err.Error()))
		}
		s.mu.Lock()
		if s.state == StateScanning {
			s.scanCancel = nil
			s.setStateLocked(StateIdle, "", nil)
		}
		s.mu.Unlock()
	}()
	return nil
}

// StopScan ends a running scan early. It is a no-op outside scanning and
// safe to call at any time.
func (s *Session) StopScan() {
	s.mu.Lock()
	cancel := s.scanCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// onDiscovered filters and records one discovery event. Anonymous devices
// are dropped; duplicate ids never produce two entries.
func (s *Session) onDiscovered(d Descriptor) {
	if d.Name == "" {
		return
	}
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return
	}
	if _, seen := s.index[d.ID]; seen {
		s.mu.Unlock()
		return
	}
	s.index[d.ID] = len(s.devices)
	s.devices = append(s.devices, protocol.AudioSource{
		ID:   d.ID,
		Name: d.Name,
		Type: protocol.SourceExternal,
	})
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.publishSnapshot(snapshot)
}

// Connect establishes a connection to the given device. On failure or
// timeout the session returns to idle and the error surfaces to the
// caller as well as to state observers.
func (s *Session) Connect(ctx context.Context, dev protocol.AudioSource) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateConnecting:
		s.mu.Unlock()
		return fmt.Errorf("connect already in flight: %w", fault.ErrBusy)
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect in state %s: %w", state, fault.ErrNotReady)
	}
	s.setStateLocked(StateConnecting, dev.ID, nil)
	s.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.ConnectTimeoutMS)*time.Millisecond)
	defer cancel()
	err := s.dir.Connect(connectCtx, dev.ID)

	s.mu.Lock()
	if err != nil {
		s.setStateLocked(StateIdle, "", err)
		s.mu.Unlock()
		return fmt.Errorf("connect to %s: %w", dev.ID, err)
	}
	s.connectedID = dev.ID
	s.markConnectedLocked(dev.ID, true)
	s.setStateLocked(StateConnected, dev.ID, nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info("device connected", slog.String("device", dev.ID), slog.String("name", dev.Name))
	s.publishSnapshot(snapshot)
	return nil
}

// Disconnect tears down the current connection. It is a no-op success
// when nothing is connected. Teardown failures are logged, not
// propagated: the session settles in idle either way.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return nil
	}
	id := s.connectedID
	s.mu.Unlock()

	if err := s.dir.Disconnect(ctx, id); err != nil {
		s.log.Warn("device teardown failed", slog.String("device", id), slog.String("error", err.Error()))
	}

	s.mu.Lock()
	if s.state != StateConnected || s.connectedID != id {
		s.mu.Unlock()
		return nil
	}
	s.connectedID = ""
	s.markConnectedLocked(id, false)
	s.setStateLocked(StateDisconnected, id, nil)
	s.setStateLocked(StateIdle, "", nil)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishSnapshot(snapshot)
	return nil
}

// markConnectedLocked replaces the snapshot entry for id with a new value
// object carrying the connection flag.
func (s *Session) markConnectedLocked(id string, connected bool) {
	if i, ok := s.index[id]; ok {
		entry := s.devices[i]
		entry.IsConnected = connected
		s.devices[i] = entry
	}
}

func (s *Session) snapshotLocked() protocol.DeviceListSnapshot {
	return protocol.DeviceListSnapshot{
		Devices:   append([]protocol.AudioSource(nil), s.devices...),
		Timestamp: s.clock().UTC(),
	}
}

func (s *Session) publishSnapshot(snapshot protocol.DeviceListSnapshot) {
	s.bus.PublishJSON(protocol.SubjectDeviceList, snapshot)
}

// setStateLocked records a transition and notifies observers in
// transition order. Callers hold s.mu.
func (s *Session) setStateLocked(state State, deviceID string, cause error) {
	s.state = state
	change := protocol.DeviceStateChange{
		State:     string(state),
		DeviceID:  deviceID,
		Timestamp: s.clock().UTC(),
	}
	if cause != nil {
		change.Error = cause.Error()
	}
	s.bus.PublishJSON(protocol.SubjectDeviceState, change)
}

// Close stops background watchers and any running scan.
func (s *Session) Close() {
	s.StopScan()
	s.cancel()
	s.wg.Wait()
}
