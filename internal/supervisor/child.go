package supervisor

import "time"

// RestartStrategy controls whether a child is restarted after exit.
type RestartStrategy string

const (
	// Permanent children are always restarted.
	Permanent RestartStrategy = "permanent"
	// Temporary children are never restarted.
	Temporary RestartStrategy = "temporary"
	// Transient children restart only on abnormal exit.
	Transient RestartStrategy = "transient"
)

// EscalationLevel is one rung of the five-level escalation ladder.
type EscalationLevel int

const (
	RestartWithState EscalationLevel = iota + 1
	RestartClean
	ReloadModule
	RestartSupervisor
	SystemRestart
)

func (l EscalationLevel) next() EscalationLevel {
	if l >= SystemRestart {
		return SystemRestart
	}
	return l + 1
}

// State is a supervised child's lifecycle state.
type State string

const (
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateCrashed    State = "crashed"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
	StateTerminated State = "terminated"
)

// Spec is the immutable configuration of a supervised child, supplied at
// register time.
type Spec struct {
	ID              string
	PayloadLocation string
	Strategy        RestartStrategy
	MaxRestarts     int
	IntensityWindow time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
}

// Child tracks the mutable runtime state of one supervised child. It is
// exclusively owned and mutated by the Supervisor that created it.
type Child struct {
	Spec Spec

	State       State
	LastError   string
	LastStop    string // stop reason, set when State == StateStopped

	RestartCount    int
	WindowStart     time.Time
	LastCrash       time.Time
	EscalationLevel EscalationLevel
	TotalCrashes    int
	RestartAttempt  int
}

// newChild constructs a Child in the Starting state from spec, filling
// in any zero-valued backoff fields from defaults.
func newChild(spec Spec, defaults Spec) *Child {
	if spec.MaxRestarts == 0 {
		spec.MaxRestarts = defaults.MaxRestarts
	}
	if spec.IntensityWindow == 0 {
		spec.IntensityWindow = defaults.IntensityWindow
	}
	if spec.BaseDelay == 0 {
		spec.BaseDelay = defaults.BaseDelay
	}
	if spec.MaxDelay == 0 {
		spec.MaxDelay = defaults.MaxDelay
	}
	if spec.BackoffFactor == 0 {
		spec.BackoffFactor = defaults.BackoffFactor
	}
	return &Child{
		Spec:            spec,
		State:           StateStarting,
		EscalationLevel: RestartWithState,
	}
}

// isNormalExit reports whether reason counts as a normal exit for
// Transient children.
func isNormalExit(reason string) bool {
	return reason == "normal" || reason == "shutdown"
}
