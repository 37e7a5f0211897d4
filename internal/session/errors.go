package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/geeprog/internal/protocol"
)

var (
	ErrTimeout  = errors.New("session: timeout waiting for device")
	ErrNotReady = errors.New("session: not in automation mode")
	ErrBusy     = errors.New("session: exchange already in progress")
	ErrClosed   = errors.New("session: closed")
)

// ProtocolError is returned when the device answers but rejects the command.
type ProtocolError = protocol.ProtocolError

// ConnectError indicates that the port could not be opened.
type ConnectError struct {
	Port string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates that the device did not deliver a complete response
// within the session timeout.
type TimeoutError struct {
	Command  byte
	Timeout  time.Duration
	Received int
	Expected int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no complete response within %v (got %d of %d bytes)",
		protocol.VerbName(e.Command), e.Timeout, e.Received, e.Expected)
}

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
