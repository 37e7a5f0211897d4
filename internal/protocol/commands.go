package protocol

import (
	"time"

	"github.com/bigbag/geeprog/internal/codec"
)

// Programmer commands. Each request is the verb byte, an optional payload
// and the Terminator.
const (
	CmdEnterAutomation = 'A'
	CmdExitAutomation  = 'Q'
	CmdRead            = 'R'
	CmdProgram         = 'P'
	CmdVerify          = 'V'
	CmdErase           = 'E'
)

// Framing bytes
const (
	Terminator = '\r'
	Ack        = '!'
	Nak        = '?'
)

// Connection defaults
const (
	DefaultBaudRate = 9600
	DefaultTimeout  = 2 * time.Second
)

// VerbName returns a human-readable name for a command byte.
func VerbName(cmd byte) string {
	switch cmd {
	case CmdEnterAutomation:
		return "enter automation"
	case CmdExitAutomation:
		return "exit automation"
	case CmdRead:
		return "read"
	case CmdProgram:
		return "program"
	case CmdVerify:
		return "verify"
	case CmdErase:
		return "erase"
	default:
		return "unknown"
	}
}

// ResponseLen returns the fixed response length for a command.
// Unknown commands return 0.
func ResponseLen(cmd byte) int {
	switch cmd {
	case CmdEnterAutomation, CmdExitAutomation, CmdProgram:
		return 1
	case CmdRead, CmdVerify, CmdErase:
		return codec.HexLen
	default:
		return 0
	}
}

// CarriesImage reports whether the command sends a chip image payload.
func CarriesImage(cmd byte) bool {
	return cmd == CmdProgram || cmd == CmdVerify
}
