package mxprobe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"time"

	"github.com/synqronlabs/mxprobe/utils"
)

// peerPollTimeout bounds the liveness poll done before each command.
const peerPollTimeout = time.Millisecond

// SessionState is the state of a session driver.
type SessionState int

const (
	// StateIdle is the state before the connection is opened.
	StateIdle SessionState = iota
	// StateConnected indicates the TCP connection is established.
	StateConnected
	// StateAwaitingBanner indicates the driver waits for the server greeting.
	StateAwaitingBanner
	// StateRunning indicates commands are being sent.
	StateRunning
	// StateClosed indicates every command ran. Terminal.
	StateClosed
	// StateErrored indicates the session failed. Terminal.
	StateErrored
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnected:
		return "CONNECTED"
	case StateAwaitingBanner:
		return "AWAITING_BANNER"
	case StateRunning:
		return "RUNNING"
	case StateClosed:
		return "CLOSED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// Session drives one TCP connection through a scripted command sequence.
//
// Every write and every read is recorded as a SessionEvent. Replies are
// never interpreted. A Session runs once; it owns its connection for the
// whole run and releases it on every exit path.
type Session struct {
	addr   string
	config Config
	logger *slog.Logger

	conn   net.Conn
	buf    []byte
	state  SessionState
	used   bool
	events []SessionEvent

	now   func() time.Time
	sleep func(time.Duration)
}

// NewSession creates a session for addr ("ip:port").
func NewSession(addr string, config Config) *Session {
	config = config.withDefaults()
	return &Session{
		addr:   addr,
		config: config,
		logger: config.Logger.With(slog.String("addr", addr)),
		state:  StateIdle,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// State returns the current state of the session.
func (s *Session) State() SessionState {
	return s.state
}

// Events returns a copy of the events recorded so far.
func (s *Session) Events() []SessionEvent {
	return slices.Clone(s.events)
}

// Run connects, waits for the banner and executes cmds in order.
// It returns a *SessionError for any connection, timeout or peer-close
// failure. Events captured before a failure remain available.
func (s *Session) Run(cmds []RenderedCommand) (err error) {
	if s.used {
		return ErrSessionUsed
	}
	s.used = true

	defer s.release()
	defer func() {
		if r := recover(); r != nil {
			s.state = StateErrored
			panic(r)
		}
		if err != nil {
			s.state = StateErrored
		}
	}()

	if err := s.connect(); err != nil {
		return err
	}
	if err := s.awaitBanner(); err != nil {
		return err
	}

	s.state = StateRunning
	for i, cmd := range cmds {
		if i == 0 && s.config.DelayBeforeFirstCommand > 0 {
			s.sleep(s.config.DelayBeforeFirstCommand)
		}
		if err := s.checkPeer(cmd); err != nil {
			return err
		}
		if err := s.send(cmd); err != nil {
			return err
		}
		if cmd.ExpectResponse {
			if err := s.awaitResponse(cmd); err != nil {
				return err
			}
		}
		if pause := s.config.DelayBetweenCommands + cmd.PauseAfter; pause > 0 {
			s.sleep(pause)
		}
	}

	s.state = StateClosed
	return nil
}

func (s *Session) connect() error {
	dialer := &net.Dialer{
		Timeout: s.config.ConnectTimeout,
	}

	conn, err := dialer.Dial("tcp", s.addr)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return &SessionError{Stage: StageConnect, Addr: s.addr, Err: err}
	}

	s.conn = conn
	s.buf = make([]byte, s.config.ReadChunk)
	s.state = StateConnected
	s.logger.Debug("connected", slog.String("local", conn.LocalAddr().String()))
	return nil
}

func (s *Session) awaitBanner() error {
	s.state = StateAwaitingBanner

	banner, err := s.read(s.config.BannerTimeout)
	if err != nil {
		return &SessionError{Stage: StageBanner, Addr: s.addr, Err: err}
	}
	s.record(DirectionReceived, s.now(), banner)
	return nil
}

// checkPeer polls the connection for bytes that arrived since the last
// read. Unsolicited bytes are recorded as received; a peer that already
// closed fails the command before anything is written.
func (s *Session) checkPeer(cmd RenderedCommand) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(peerPollTimeout)); err != nil {
		return s.commandError(StageSend, cmd, err)
	}

	n, err := s.conn.Read(s.buf)
	if n > 0 {
		s.record(DirectionReceived, s.now(), bytes.Clone(s.buf[:n]))
		return nil
	}
	switch {
	case isTimeout(err):
		return nil
	case err == nil, errors.Is(err, io.EOF):
		return s.commandError(StageSend, cmd, ErrConnectionClosed)
	default:
		return s.commandError(StageSend, cmd, err)
	}
}

func (s *Session) send(cmd RenderedCommand) error {
	sentAt := s.now()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.CommandTimeout)); err != nil {
		return s.commandError(StageSend, cmd, err)
	}
	if _, err := s.conn.Write(cmd.Data); err != nil {
		if isTimeout(err) {
			err = ErrTimeout
		}
		return s.commandError(StageSend, cmd, err)
	}
	s.record(DirectionSent, sentAt, bytes.Clone(cmd.Data))
	return nil
}

func (s *Session) awaitResponse(cmd RenderedCommand) error {
	reply, err := s.read(s.config.CommandTimeout)
	if err != nil {
		return s.commandError(StageResponse, cmd, err)
	}
	s.record(DirectionReceived, s.now(), reply)
	return nil
}

// read performs exactly one read bounded by timeout. A read that returns no
// bytes means the peer closed the connection.
func (s *Session) read(timeout time.Duration) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	n, err := s.conn.Read(s.buf)
	if n > 0 {
		return bytes.Clone(s.buf[:n]), nil
	}
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil, ErrConnectionClosed
	case isTimeout(err):
		return nil, ErrTimeout
	default:
		return nil, err
	}
}

func (s *Session) record(dir Direction, at time.Time, payload []byte) {
	s.events = append(s.events, SessionEvent{
		Direction: dir,
		Timestamp: at,
		Payload:   payload,
	})
	s.logger.Debug("transcript",
		slog.String("direction", string(dir)),
		slog.Int("bytes", len(payload)),
	)
}

func (s *Session) commandError(stage Stage, cmd RenderedCommand, err error) error {
	return &SessionError{
		Stage:   stage,
		Addr:    s.addr,
		Command: utils.Preview(cmd.Data, utils.PreviewLength),
		Err:     err,
	}
}

// release closes the connection. It is safe to call more than once; the
// connection is closed exactly once.
func (s *Session) release() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Debug("close failed", slog.Any("error", err))
	}
	s.conn = nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
