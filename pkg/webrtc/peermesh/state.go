package peermesh

// HandshakeState tracks a peer link through its offer/answer exchange.
// Transitions are monotonic along the legal paths; closed and failed are
// terminal, except that a failed link may still be closed for cleanup.
type HandshakeState int

const (
	StateIdle HandshakeState = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateConnected
	StateFailed
	StateClosed
)

func (s HandshakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerSent:
		return "answer-sent"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further handshake progress is possible.
func (s HandshakeState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// CanTransition reports whether moving from s to next follows a legal path:
//
//	idle -> offer-sent
//	idle -> offer-received -> answer-sent -> connected
//	offer-sent -> connected
//	connected -> connected        (late ICE candidates, no state change)
//	any non-terminal -> failed
//	any state -> closed
func (s HandshakeState) CanTransition(next HandshakeState) bool {
	if next == StateClosed {
		return true
	}
	if next == StateFailed {
		return !s.Terminal()
	}
	switch s {
	case StateIdle:
		return next == StateOfferSent || next == StateOfferReceived
	case StateOfferSent:
		return next == StateConnected
	case StateOfferReceived:
		return next == StateAnswerSent
	case StateAnswerSent:
		return next == StateConnected
	case StateConnected:
		return next == StateConnected
	default:
		return false
	}
}
