package session

import (
	"fmt"
	"time"

	"github.com/bigbag/geeprog/internal/protocol"
)

// Exchange sends req and waits for exactly expectedLen response bytes.
// It is only allowed in the Ready state.
//
// A transport failure or timeout closes the session: the device state is
// unknown afterwards and the caller has to reconnect. A ProtocolError (the
// device rejected the command) leaves the session Ready.
func (s *Session) Exchange(req protocol.Request, expectedLen int) ([]byte, error) {
	switch s.State() {
	case Ready:
	case Closed:
		return nil, ErrClosed
	default:
		return nil, ErrNotReady
	}
	if expectedLen < 0 {
		return nil, fmt.Errorf("invalid response length %d for %s", expectedLen, protocol.VerbName(req.Command))
	}

	resp, err := s.roundTrip(req, expectedLen)
	if err != nil {
		if protocol.IsProtocolError(err) || err == ErrBusy {
			return nil, err
		}
		s.log.Warn().Err(err).Str("cmd", protocol.VerbName(req.Command)).Msg("exchange failed, closing session")
		s.teardown()
		return nil, err
	}
	return resp, nil
}

// roundTrip writes one frame and collects the response.
func (s *Session) roundTrip(req protocol.Request, expectedLen int) ([]byte, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	return s.transact(req, expectedLen)
}

// acquire claims the link for one exchange.
func (s *Session) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Session) release() {
	s.busy.Store(false)
}

// transact runs one exchange. The caller must hold the link.
func (s *Session) transact(req protocol.Request, expectedLen int) ([]byte, error) {
	verb := protocol.VerbName(req.Command)

	// Drop anything left over from a previous exchange
	if err := s.stream.Flush(); err != nil {
		s.log.Debug().Err(err).Msg("input flush failed")
	}

	frame := req.Encode()
	s.log.Debug().Str("cmd", verb).Int("bytes", len(frame)).Msg("send")
	if err := s.write(frame); err != nil {
		return nil, fmt.Errorf("write %s: %w", verb, err)
	}

	resp, err := s.readResponse(req.Command, expectedLen)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("cmd", verb).Int("bytes", len(resp)).Msg("recv")
	return resp, nil
}

func (s *Session) write(frame []byte) error {
	sent := 0
	for sent < len(frame) {
		n, err := s.stream.Write(frame[sent:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("write returned %d", n)
		}
		sent += n
	}
	return nil
}

// readResponse reads until expectedLen bytes arrive or the session timeout
// elapses, whichever comes first.
func (s *Session) readResponse(cmd byte, expectedLen int) ([]byte, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, expectedLen)
	received := 0

	for received < expectedLen {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &TimeoutError{
				Command:  cmd,
				Timeout:  s.timeout,
				Received: received,
				Expected: expectedLen,
			}
		}

		if err := s.stream.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("set read timeout: %w", err)
		}

		n, err := s.stream.Read(buf[received:])
		if n > 0 {
			received += n
		}
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", protocol.VerbName(cmd), err)
		}

		// A reject byte ends the response early
		if received > 0 && buf[0] == protocol.Nak {
			return nil, &protocol.ProtocolError{Command: cmd, Reason: "rejected by device"}
		}
	}

	return buf, nil
}
