package protocol

import "fmt"

// ProtocolError means the device answered but rejected the command or sent
// something that does not fit the frame.
type ProtocolError struct {
	// Command is the verb that failed
	Command byte

	// Reason describes what was wrong with the response
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s", VerbName(e.Command), e.Reason)
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}
