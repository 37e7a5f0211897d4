package session

// State is the lifecycle position of a Session.
type State int32

const (
	Unopened State = iota
	Opening
	AutomationPending
	Ready
	AutomationExiting
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Opening:
		return "opening"
	case AutomationPending:
		return "automation pending"
	case Ready:
		return "ready"
	case AutomationExiting:
		return "automation exiting"
	case Closed:
		return "closed"
	default:
		return "invalid"
	}
}
