package chip

import (
	"strings"
	"sync"
	"time"

	"github.com/bigbag/geeprog/internal/codec"
	"github.com/bigbag/geeprog/internal/protocol"
	"github.com/bigbag/geeprog/internal/session"
)

// simEEPROM is a programmer with a chip attached, speaking the wire
// protocol over an in-memory stream.
type simEEPROM struct {
	mu          sync.Mutex
	memory      string
	stuckLow    int // digit index forced to '0' on write, -1 for none
	silentOn    byte
	rejectOn    byte
	pending     []byte
	readTimeout time.Duration
	closed      bool
}

func newSimEEPROM() *simEEPROM {
	return &simEEPROM{
		memory:      strings.Repeat("FF", codec.NumBytes),
		stuckLow:    -1,
		readTimeout: 10 * time.Millisecond,
	}
}

func (d *simEEPROM) handle(frame []byte) []byte {
	cmd := frame[0]
	payload := string(frame[1 : len(frame)-1])

	if cmd == d.silentOn {
		return nil
	}
	if cmd == d.rejectOn {
		return []byte{protocol.Nak}
	}

	switch cmd {
	case protocol.CmdEnterAutomation, protocol.CmdExitAutomation:
		return []byte{protocol.Ack}
	case protocol.CmdProgram:
		written := []byte(payload)
		if d.stuckLow >= 0 {
			written[d.stuckLow] = '0'
		}
		d.memory = string(written)
		return []byte{protocol.Ack}
	case protocol.CmdRead, protocol.CmdVerify:
		return []byte(strings.ToLower(d.memory))
	case protocol.CmdErase:
		d.memory = codec.ZeroImage()
		return []byte(d.memory)
	}
	return []byte{protocol.Nak}
}

func (d *simEEPROM) Read(buf []byte) (int, error) {
	d.mu.Lock()
	if len(d.pending) > 0 {
		n := copy(buf, d.pending)
		d.pending = d.pending[n:]
		d.mu.Unlock()
		return n, nil
	}
	timeout := d.readTimeout
	d.mu.Unlock()

	time.Sleep(timeout)
	return 0, nil
}

func (d *simEEPROM) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, d.handle(data)...)
	return len(data), nil
}

func (d *simEEPROM) SetReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = timeout
	return nil
}

func (d *simEEPROM) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	return nil
}

func (d *simEEPROM) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// connectSim returns a ready session talking to dev.
func connectSim(dev *simEEPROM) (*session.Session, error) {
	s := session.New("sim", dev, session.Config{Timeout: 100 * time.Millisecond})
	if err := s.EnterAutomationMode(); err != nil {
		return nil, err
	}
	return s, nil
}
