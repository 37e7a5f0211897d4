package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/bigbag/geeprog/internal/protocol"
	"github.com/bigbag/geeprog/internal/serial"
)

// Stream is the byte stream a Session drives. *serial.Port satisfies it.
type Stream interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	SetReadTimeout(timeout time.Duration) error
	Flush() error
	Close() error
}

// allow tests to replace the serial port
var openStream = func(portName string, baudRate int, timeout time.Duration) (Stream, error) {
	port, err := serial.Open(portName, baudRate, timeout)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Config holds session settings. Zero fields take protocol defaults.
type Config struct {
	BaudRate int
	Timeout  time.Duration
	Logger   *zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = protocol.DefaultBaudRate
	}
	if c.Timeout <= 0 {
		c.Timeout = protocol.DefaultTimeout
	}
	return c
}

func (c Config) logger(portName string) zerolog.Logger {
	l := zerolog.Nop()
	if c.Logger != nil {
		l = *c.Logger
	}
	return l.With().Str("port", portName).Logger()
}

// Session is one logical connection to a programmer. It owns its stream
// until Close. A Session is not safe for concurrent exchanges; a second
// caller gets ErrBusy instead of interleaving with the first.
type Session struct {
	stream   Stream
	portName string
	timeout  time.Duration
	log      zerolog.Logger

	state atomic.Int32
	busy  atomic.Bool
}

// Open opens portName and returns a session awaiting EnterAutomationMode.
func Open(portName string, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		portName: portName,
		timeout:  cfg.Timeout,
		log:      cfg.logger(portName),
	}
	s.setState(Opening)

	stream, err := openStream(portName, cfg.BaudRate, cfg.Timeout)
	if err != nil {
		s.setState(Closed)
		return nil, &ConnectError{Port: portName, Err: err}
	}

	s.stream = stream
	s.setState(AutomationPending)
	s.log.Debug().Int("baud", cfg.BaudRate).Dur("timeout", cfg.Timeout).Msg("port opened")
	return s, nil
}

// New wraps an already-open stream. The session takes ownership of it.
func New(name string, stream Stream, cfg Config) *Session {
	cfg = cfg.withDefaults()

	s := &Session{
		stream:   stream,
		portName: name,
		timeout:  cfg.Timeout,
		log:      cfg.logger(name),
	}
	s.setState(AutomationPending)
	return s
}

// Connect opens portName and enters automation mode. If the handshake
// fails the port is released before returning.
func Connect(portName string, cfg Config) (*Session, error) {
	s, err := Open(portName, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.EnterAutomationMode(); err != nil {
		return nil, err
	}
	return s, nil
}

// EnterAutomationMode performs the handshake that makes the programmer accept
// commands. It must be called once after Open. On failure the session is
// torn down and moves to Closed.
func (s *Session) EnterAutomationMode() error {
	st := s.State()
	if st == Closed {
		return ErrClosed
	}
	if st != AutomationPending {
		return fmt.Errorf("cannot enter automation mode in state %s", st)
	}

	req := protocol.NewRequest(protocol.CmdEnterAutomation)
	resp, err := s.roundTrip(req, req.ResponseLen())
	if err == nil {
		err = protocol.DecodeAck(req.Command, resp)
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("automation handshake failed")
		s.teardown()
		return fmt.Errorf("enter automation mode: %w", err)
	}

	s.setState(Ready)
	s.log.Debug().Msg("automation mode engaged")
	return nil
}

// ExitAutomationMode asks the programmer to leave automation mode. It is
// best effort: callers tearing down a connection may ignore the error. A
// transport failure or timeout closes the session.
func (s *Session) ExitAutomationMode() error {
	if s.State() == Closed || s.stream == nil {
		return ErrClosed
	}
	if !s.acquire() {
		return ErrBusy
	}
	s.setState(AutomationExiting)

	req := protocol.NewRequest(protocol.CmdExitAutomation)
	resp, err := s.transact(req, req.ResponseLen())
	s.release()
	if err == nil {
		err = protocol.DecodeAck(req.Command, resp)
	}
	if err != nil {
		if !protocol.IsProtocolError(err) {
			s.teardown()
		}
		return fmt.Errorf("exit automation mode: %w", err)
	}

	s.log.Debug().Msg("automation mode released")
	return nil
}

// Close attempts ExitAutomationMode, suppressing its error, then releases
// the stream. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.State() == Closed || s.stream == nil {
		s.setState(Closed)
		return nil
	}

	if s.State() != AutomationExiting {
		if err := s.ExitAutomationMode(); err != nil {
			s.log.Warn().Err(err).Msg("ignoring exit automation failure during close")
		}
	}

	// A failed exit may already have released the stream
	if s.stream == nil {
		s.setState(Closed)
		return nil
	}

	err := s.stream.Close()
	s.stream = nil
	s.setState(Closed)
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", s.portName, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Ready reports whether chip operations may be issued.
func (s *Session) Ready() bool {
	return s != nil && s.State() == Ready
}

// PortName returns the port the session was opened on.
func (s *Session) PortName() string {
	return s.portName
}

// Timeout returns the per-exchange timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// teardown releases the stream after a failure. The exit command is written
// without waiting for an ack since the device may already be gone.
func (s *Session) teardown() {
	if s.stream != nil {
		exit := protocol.NewRequest(protocol.CmdExitAutomation).Encode()
		if _, err := s.stream.Write(exit); err != nil {
			s.log.Debug().Err(err).Msg("exit automation write failed during teardown")
		}
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close failed during teardown")
		}
		s.stream = nil
	}
	s.setState(Closed)
}
