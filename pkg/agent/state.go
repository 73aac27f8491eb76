package agent

// AgentState is the lifecycle state of an agent's run loop.
type AgentState int

const (
	StateIdle AgentState = iota
	StateRunning
	StateFinished
	StateError
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusCallback receives progress updates during a run: the phase
// label, a human-readable message, and the run state ("running",
// "complete", "error").
type StatusCallback func(phase, message, state string)
