package session

import (
	"strings"
	"sync"
	"time"

	"github.com/bigbag/geeprog/internal/codec"
	"github.com/bigbag/geeprog/internal/protocol"
)

// fakeStream plays the programmer side of the link. respond maps each
// written frame to the bytes the device sends back; nil means silence.
type fakeStream struct {
	mu          sync.Mutex
	respond     func(frame []byte) []byte
	pending     []byte
	writes      [][]byte
	readTimeout time.Duration
	closed      bool
	readErr     error
}

func newFakeStream(respond func(frame []byte) []byte) *fakeStream {
	return &fakeStream{respond: respond, readTimeout: 10 * time.Millisecond}
}

// programmerResponder answers like a healthy programmer holding image.
func programmerResponder(image string) func(frame []byte) []byte {
	return func(frame []byte) []byte {
		switch frame[0] {
		case protocol.CmdEnterAutomation, protocol.CmdExitAutomation, protocol.CmdProgram:
			return []byte{protocol.Ack}
		case protocol.CmdRead, protocol.CmdVerify, protocol.CmdErase:
			return []byte(image)
		}
		return []byte{protocol.Nak}
	}
}

func testImage() string {
	return strings.Repeat("5A", codec.NumBytes)
}

func (f *fakeStream) Read(buf []byte) (int, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return 0, err
	}
	if len(f.pending) > 0 {
		n := copy(buf, f.pending)
		f.pending = f.pending[n:]
		f.mu.Unlock()
		return n, nil
	}
	timeout := f.readTimeout
	f.mu.Unlock()

	// Nothing to deliver: behave like a serial read timing out
	time.Sleep(timeout)
	return 0, nil
}

func (f *fakeStream) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, cp)
	if f.respond != nil {
		f.pending = append(f.pending, f.respond(cp)...)
	}
	return len(data), nil
}

func (f *fakeStream) SetReadTimeout(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readTimeout = timeout
	return nil
}

func (f *fakeStream) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeStream) commands() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmds := make([]byte, 0, len(f.writes))
	for _, w := range f.writes {
		cmds = append(cmds, w[0])
	}
	return cmds
}
