package chip

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bigbag/geeprog/internal/protocol"
)

// ErrNoSession is returned when no programmer is connected.
var ErrNoSession = errors.New("no active session")

// OperationError wraps any failure of a chip operation.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Exchanger is the part of a session the programmer drives.
// *session.Session satisfies it.
type Exchanger interface {
	Exchange(req protocol.Request, expectedLen int) ([]byte, error)
	Ready() bool
}

// ProgressCallback is called to report operation progress.
type ProgressCallback func(current, total int)

// Programmer issues read, program, verify and erase commands. All images are
// in hex form; binary conversion happens in the codec before or after.
type Programmer struct {
	session  Exchanger
	progress ProgressCallback
	log      zerolog.Logger
}

// New creates a new Programmer for the given session. A nil session is
// allowed; every operation then fails with ErrNoSession.
func New(session Exchanger) *Programmer {
	return &Programmer{session: session, log: zerolog.Nop()}
}

// SetProgressCallback sets the progress callback function.
func (p *Programmer) SetProgressCallback(cb ProgressCallback) {
	p.progress = cb
}

// SetLogger sets the diagnostic logger.
func (p *Programmer) SetLogger(l zerolog.Logger) {
	p.log = l
}

// reportProgress calls the progress callback if set.
func (p *Programmer) reportProgress(current, total int) {
	if p.progress != nil {
		p.progress(current, total)
	}
}

// Read returns the chip contents as 64 uppercase hex digits.
func (p *Programmer) Read() (string, error) {
	image, err := p.fetchImage(protocol.NewRequest(protocol.CmdRead))
	if err != nil {
		return "", &OperationError{Op: "read", Err: err}
	}
	p.reportProgress(1, 1)
	return image, nil
}

// Program writes hexImage, which must be exactly 64 digits, then verifies
// it. A false result means the write completed but read-back differs; it is
// not an error. After an error the chip contents are undefined.
func (p *Programmer) Program(hexImage string) (bool, error) {
	req, err := protocol.NewImageRequest(protocol.CmdProgram, hexImage)
	if err != nil {
		return false, &OperationError{Op: "program", Err: err}
	}

	// Write
	if err := p.checkSession(); err != nil {
		return false, &OperationError{Op: "program", Err: err}
	}
	resp, err := p.session.Exchange(req, req.ResponseLen())
	if err == nil {
		err = protocol.DecodeAck(req.Command, resp)
	}
	if err != nil {
		return false, &OperationError{Op: "program", Err: err}
	}
	p.reportProgress(1, 2)

	// Verify against what was written
	matched, err := p.verify(string(req.Payload))
	if err != nil {
		return false, &OperationError{Op: "program", Err: err}
	}
	p.reportProgress(2, 2)

	p.log.Debug().Bool("verified", matched).Msg("program complete")
	return matched, nil
}

// Verify compares the chip against hexImage. A mismatch returns false
// without an error.
func (p *Programmer) Verify(hexImage string) (bool, error) {
	matched, err := p.verify(hexImage)
	if err != nil {
		return false, &OperationError{Op: "verify", Err: err}
	}
	p.reportProgress(1, 1)
	return matched, nil
}

// Erase clears the chip and returns its contents afterwards. Erase does not
// judge success; compare the result with codec.ZeroImage.
func (p *Programmer) Erase() (string, error) {
	image, err := p.fetchImage(protocol.NewRequest(protocol.CmdErase))
	if err != nil {
		return "", &OperationError{Op: "erase", Err: err}
	}
	p.reportProgress(1, 1)
	return image, nil
}

func (p *Programmer) verify(expected string) (bool, error) {
	req, err := protocol.NewImageRequest(protocol.CmdVerify, expected)
	if err != nil {
		return false, err
	}

	actual, err := p.fetchImage(req)
	if err != nil {
		return false, err
	}

	// Both sides are uppercase: the payload was normalized by
	// NewImageRequest, the response by DecodeImage.
	matched := actual == string(req.Payload)
	if !matched {
		p.log.Debug().Str("expected", string(req.Payload)).Str("actual", actual).Msg("verify mismatch")
	}
	return matched, nil
}

// fetchImage runs an exchange whose response is a chip image.
func (p *Programmer) fetchImage(req protocol.Request) (string, error) {
	if err := p.checkSession(); err != nil {
		return "", err
	}

	resp, err := p.session.Exchange(req, req.ResponseLen())
	if err != nil {
		return "", err
	}
	return protocol.DecodeImage(req.Command, resp)
}

func (p *Programmer) checkSession() error {
	if p.session == nil || !p.session.Ready() {
		return ErrNoSession
	}
	return nil
}
