package transport

// Status is the connection state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event drives the connection state machine.
type Event int

const (
	// EventDial starts a connection attempt.
	EventDial Event = iota
	// EventOpen reports a successful handshake.
	EventOpen
	// EventFail reports a failed attempt or a socket error.
	EventFail
	// EventClose reports that an open socket was closed.
	EventClose
	// EventReset tears the connection down on purpose (shutdown or address change).
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventDial:
		return "dial"
	case EventOpen:
		return "open"
	case EventFail:
		return "fail"
	case EventClose:
		return "close"
	case EventReset:
		return "reset"
	default:
		return "unknown"
	}
}

var transitions = map[Status]map[Event]Status{
	Disconnected: {
		EventDial:  Connecting,
		EventReset: Disconnected,
	},
	Connecting: {
		EventOpen:  Connected,
		EventFail:  Disconnected,
		EventReset: Disconnected,
	},
	Connected: {
		EventFail:  Disconnected,
		EventClose: Disconnected,
		EventReset: Disconnected,
	},
}

// Next returns the state reached from s on e. ok is false when the event is
// not valid in s.
func Next(s Status, e Event) (next Status, ok bool) {
	next, ok = transitions[s][e]
	return next, ok
}

// StatusChange describes one transition. Err is the human readable reason
// for landing in Disconnected, empty otherwise.
type StatusChange struct {
	From  Status
	To    Status
	Event Event
	Err   string
}
