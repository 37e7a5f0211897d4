package protocol

import (
	"fmt"

	"github.com/bigbag/geeprog/internal/codec"
)

// Request is one outgoing programmer command.
type Request struct {
	Command byte
	Payload []byte
}

// NewRequest creates a request for a command without payload.
func NewRequest(cmd byte) Request {
	return Request{Command: cmd}
}

// NewImageRequest creates a program or verify request carrying a full hex
// image. The image must already be exactly codec.HexLen digits.
func NewImageRequest(cmd byte, hexImage string) (Request, error) {
	if !CarriesImage(cmd) {
		return Request{}, fmt.Errorf("%s does not take an image", VerbName(cmd))
	}
	if len(hexImage) != codec.HexLen {
		return Request{}, fmt.Errorf("image must be %d hex digits, got %d", codec.HexLen, len(hexImage))
	}
	normalized, err := codec.NormalizeHex(hexImage)
	if err != nil {
		return Request{}, err
	}
	return Request{Command: cmd, Payload: []byte(normalized)}, nil
}

// Encode serializes the request to wire bytes.
func (r Request) Encode() []byte {
	// Frame format:
	// 0: verb
	// 1..n: payload (ASCII hex for program/verify)
	// n+1: terminator
	frame := make([]byte, 0, len(r.Payload)+2)
	frame = append(frame, r.Command)
	frame = append(frame, r.Payload...)
	frame = append(frame, Terminator)
	return frame
}

// ResponseLen returns the number of response bytes the device sends back.
func (r Request) ResponseLen() int {
	return ResponseLen(r.Command)
}

// IsNak reports whether a response starts with the reject byte.
func IsNak(resp []byte) bool {
	return len(resp) > 0 && resp[0] == Nak
}

// DecodeAck checks a single-byte acknowledgement.
func DecodeAck(cmd byte, resp []byte) error {
	if len(resp) != 1 {
		return &ProtocolError{Command: cmd, Reason: fmt.Sprintf("expected 1 byte ack, got %d bytes", len(resp))}
	}
	switch resp[0] {
	case Ack:
		return nil
	case Nak:
		return &ProtocolError{Command: cmd, Reason: "rejected by device"}
	default:
		return &ProtocolError{Command: cmd, Reason: fmt.Sprintf("unexpected response 0x%02X", resp[0])}
	}
}

// DecodeImage validates an image response and returns it as uppercase hex.
func DecodeImage(cmd byte, resp []byte) (string, error) {
	if IsNak(resp) {
		return "", &ProtocolError{Command: cmd, Reason: "rejected by device"}
	}
	if len(resp) != codec.HexLen {
		return "", &ProtocolError{Command: cmd, Reason: fmt.Sprintf("expected %d hex digits, got %d", codec.HexLen, len(resp))}
	}
	image, err := codec.NormalizeHex(string(resp))
	if err != nil {
		return "", &ProtocolError{Command: cmd, Reason: fmt.Sprintf("malformed image: %v", err)}
	}
	return image, nil
}
