package gsp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Reference palette (spec.md §4.4): a small fixed set of per-opcode values,
// convenient for debugging and safe only because the Session serialises its
// operations — see the REDESIGN note in spec.md §9 about reference pooling
// for a pipelined implementation.
const (
	RefHello    byte = 100
	RefFetchLog byte = 101
	RefConfig   byte = 102
	RefStart    byte = 103
	RefStop     byte = 104
	RefGet      byte = 105
	RefErase    byte = 106
	RefSysMode  byte = 107
	RefTime     byte = 108
)

const (
	defaultScanTimeout    = 10 * time.Second
	defaultCommandTimeout = 10 * time.Second
	defaultFetchIdle      = 30 * time.Second
	defaultDrainTimeout   = 1 * time.Second
)

// Session owns one connected device end-to-end: discovery, connection, time
// sync, notification setup, the high-level operations, and guaranteed clean
// teardown (spec.md §4.4). A Session drives exactly one command at a time.
type Session struct {
	transport Transport
	logger    *logrus.Logger
	router    *Router

	CommandTimeout time.Duration
	FetchIdle      time.Duration
	DrainTimeout   time.Duration
	ScanTimeout    time.Duration

	address    string
	deviceName string
	client     Client

	mu                   sync.Mutex // serialises the Session's public operations
	notificationsEnabled bool
	disconnected         atomic.Bool
}

// NewSession creates a Session bound to transport. The logger is passed in
// at construction rather than taken from process-wide log state (spec.md §9
// REDESIGN FLAG); a nil logger is replaced by logrus.New().
func NewSession(transport Transport, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		transport:      transport,
		logger:         logger,
		router:         NewRouter(logger),
		CommandTimeout: defaultCommandTimeout,
		FetchIdle:      defaultFetchIdle,
		DrainTimeout:   defaultDrainTimeout,
		ScanTimeout:    defaultScanTimeout,
	}
}

// Address returns the address discovered by Open (or set by the caller).
func (s *Session) Address() string { return s.address }

// DeviceName returns the advertised name discovered by Open.
func (s *Session) DeviceName() string { return s.deviceName }

// SetAddress skips discovery when the caller already knows the address.
func (s *Session) SetAddress(address string) { s.address = address }

// Open scans for a device whose advertised name ends with serialSuffix,
// completing as soon as the first match is observed (spec.md §4.4). It
// fails with ErrDeviceNotFound if no match arrives within ScanTimeout.
func (s *Session) Open(ctx context.Context, serialSuffix string) error {
	scanCtx, cancel := context.WithTimeout(ctx, s.scanTimeout())
	defer cancel()

	found := make(chan Advertisement, 1)
	handle, err := s.transport.Scan(scanCtx, func(adv Advertisement) {
		if strings.HasSuffix(adv.Name(), serialSuffix) {
			select {
			case found <- adv:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("scan for %q: %w", serialSuffix, err)
	}
	defer s.transport.StopScan(handle)

	select {
	case adv := <-found:
		s.address = adv.Address()
		s.deviceName = adv.Name()
		return nil
	case <-scanCtx.Done():
		return ErrDeviceNotFound
	}
}

func (s *Session) scanTimeout() time.Duration {
	if s.ScanTimeout > 0 {
		return s.ScanTimeout
	}
	return defaultScanTimeout
}

// Connect opens the BLE connection, subscribes to notifications, and — if
// timeSetPolicy is true — immediately sends PUT_UTCTIME with the current
// wall-clock time. The observed firmware policy (spec.md §9) is: enabled
// for status/config/start/stop, disabled for fetch and erase.
func (s *Session) Connect(ctx context.Context, timeSetPolicy bool) error {
	client, err := s.transport.Connect(ctx, s.address, s.handleDisconnect)
	if err != nil {
		return &ConnectFailedError{Reason: err}
	}
	s.client = client

	if err := s.transport.Subscribe(client, NotifyCharacteristic, s.handleNotification); err != nil {
		s.transport.Disconnect(client)
		return &ConnectFailedError{Reason: err}
	}
	s.notificationsEnabled = true

	if timeSetPolicy {
		if err := s.setUTCTime(ctx, time.Now()); err != nil {
			_ = s.Close()
			return &ConnectFailedError{Reason: err}
		}
	}
	return nil
}

func (s *Session) handleNotification(data []byte) {
	if err := s.router.Deliver(data); err != nil {
		s.logger.WithError(err).Warn("failed to decode inbound GSP frame")
	}
}

func (s *Session) handleDisconnect() {
	if s.disconnected.CompareAndSwap(false, true) {
		s.logger.WithField("address", s.address).Warn("device disconnected unexpectedly")
		s.router.FailAll(ErrDisconnected)
	}
}

// Close unsubscribes, disconnects, and drops all outstanding mailboxes with
// ErrCancelled. Close must complete even if the transport already signalled
// disconnect (spec.md §4.4).
func (s *Session) Close() error {
	s.router.CancelAll()

	if s.client == nil {
		return nil
	}
	if s.notificationsEnabled {
		if err := s.transport.Unsubscribe(s.client, NotifyCharacteristic); err != nil {
			s.logger.WithError(err).Debug("unsubscribe failed during close")
		}
		s.notificationsEnabled = false
	}
	s.transport.Disconnect(s.client)
	s.client = nil
	return nil
}

// sendCommand arms the reference's mailbox, writes the command, then awaits
// the response — in that order, per spec.md §9, so a data frame or response
// racing ahead of the write is never lost.
func (s *Session) sendCommand(ctx context.Context, cmd Command, timeout time.Duration) (*InboundFrame, error) {
	if s.disconnected.Load() {
		return nil, ErrDisconnected
	}

	mb, err := s.router.Arm(cmd.Reference)
	if err != nil {
		return nil, err
	}

	encoded := cmd.Encode()
	if err := s.transport.Write(s.client, WriteCharacteristic, encoded, true); err != nil {
		s.router.Disarm(cmd.Reference)
		mb.Cancel()
		return nil, fmt.Errorf("write %s command: %w", cmd.Opcode, err)
	}

	frame, err := mb.Receive(ctx, timeout)
	s.router.Disarm(cmd.Reference)
	return frame, err
}

func checkStatus(frame *InboundFrame) error {
	if !frame.HasStatus {
		return nil // HELLO: the device reports success implicitly
	}
	if frame.StatusCode != 200 {
		return &CommandFailedError{StatusCode: frame.StatusCode}
	}
	return nil
}

// GetStatus sends HELLO followed by GET "/Mem/DataLogger/State" and
// composes both into a DeviceStatus (spec.md §4.4, §4.7). On failure of the
// second command the partial status (HELLO fields only) is still returned
// alongside the structured error; no retries happen at this level.
func (s *Session) GetStatus(ctx context.Context) (*DeviceStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.router.RegisterHelloReference(RefHello)
	helloFrame, err := s.sendCommand(ctx, Command{Opcode: OpHello, Reference: RefHello}, s.CommandTimeout)
	if err != nil {
		return nil, err
	}
	status := parseHelloResponse(helloFrame.Data)

	getFrame, err := s.sendCommand(ctx, NewPathCommand(OpGet, RefGet, "/Mem/DataLogger/State"), s.CommandTimeout)
	if err != nil {
		status.StateErr = err
		return &status, err
	}
	if err := checkStatus(getFrame); err != nil {
		status.StateErr = err
		return &status, err
	}
	state, err := parseDataLoggerState(getFrame.Data)
	if err != nil {
		status.StateErr = err
		return &status, err
	}
	status.DLState = state
	status.HasDLState = true
	return &status, nil
}

// Configure appends the implicit "/Time/Detailed" path (not supplied by the
// caller) and issues PUT_DATALOGGER_CONFIG (spec.md §4.4).
func (s *Session) Configure(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]string, 0, len(paths)+1)
	all = append(all, paths...)
	all = append(all, "/Time/Detailed")

	frame, err := s.sendCommand(ctx, NewConfigCommand(RefConfig, all), s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

// StartLogging issues PUT_DATALOGGER_STATE with state byte 3 (Logging).
func (s *Session) StartLogging(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := Command{Opcode: OpPutDataloggerState, Reference: RefStart, Payload: []byte{byte(StateLogging)}}
	frame, err := s.sendCommand(ctx, cmd, s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

// StopLogging issues PUT_DATALOGGER_STATE with state byte 2 (Ready).
func (s *Session) StopLogging(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := Command{Opcode: OpPutDataloggerState, Reference: RefStop, Payload: []byte{byte(StateReady)}}
	frame, err := s.sendCommand(ctx, cmd, s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

// EraseMemory issues CLEAR_LOGBOOK.
func (s *Session) EraseMemory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := Command{Opcode: OpClearLogbook, Reference: RefErase}
	frame, err := s.sendCommand(ctx, cmd, s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

// SetSystemMode issues PUT_SYSTEMMODE. The CLI calls this with mode 5 after
// every successful fetch session to avoid a 409 on firmware <= 2.3.1
// (spec.md §9 "SystemMode reset").
func (s *Session) SetSystemMode(ctx context.Context, mode byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := Command{Opcode: OpPutSystemMode, Reference: RefSysMode, Payload: []byte{mode}}
	frame, err := s.sendCommand(ctx, cmd, s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

func (s *Session) setUTCTime(ctx context.Context, now time.Time) error {
	micros := uint64(now.UnixMicro())
	frame, err := s.sendCommand(ctx, NewUTCTimeCommand(RefTime, micros), s.CommandTimeout)
	if err != nil {
		return err
	}
	return checkStatus(frame)
}

// FetchLog runs the Log Fetch Engine for one log_id against sink (spec.md
// §4.5). See fetch.go.
func (s *Session) FetchLog(ctx context.Context, logID uint32, sink Sink) (*LogTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fetchLog(ctx, s, logID, sink)
}
