package feedsync

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions happen without a new Open.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Live reports whether the session still follows the change feed.
func (s State) Live() bool {
	return s == StateConnecting || s == StateActive || s == StateReconnecting
}
