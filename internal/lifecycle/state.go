package lifecycle

// State is a run state of the pipeline controller.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateAwaitingTermination
	StateTerminatedOK
	StateTerminatedError
	StateAborted
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateAwaitingTermination:
		return "awaiting_termination"
	case StateTerminatedOK:
		return "terminated_ok"
	case StateTerminatedError:
		return "terminated_error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Final reports whether no further transition can happen.
func (s State) Final() bool {
	return s == StateTerminatedOK || s == StateTerminatedError || s == StateAborted
}

// Process exit codes.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitConfig  = 2
	ExitAborted = 130
)

// ExitCode maps a final state to the process exit status.
func (s State) ExitCode() int {
	switch s {
	case StateTerminatedOK:
		return ExitOK
	case StateAborted:
		return ExitAborted
	default:
		return ExitRuntime
	}
}
