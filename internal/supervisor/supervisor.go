// Package supervisor implements the kernel's Erlang-style child
// supervision: restart strategies, intensity windows, exponential
// backoff, and a five-level escalation ladder.
package supervisor

import (
	"sync"
	"time"

	"github.com/Michiganman2353/ESTA-Logic/internal/audit"
	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/pkg/kerrors"
	"github.com/Michiganman2353/ESTA-Logic/pkg/logger"
)

// OutcomeKind names which variant of Outcome is populated.
type OutcomeKind string

const (
	OutcomeStop     OutcomeKind = "stop"
	OutcomeRestart  OutcomeKind = "restart"
	OutcomeEscalate OutcomeKind = "escalate"
)

// Outcome is the supervisor's decision in response to a crash report.
type Outcome struct {
	Kind OutcomeKind

	StopReason string // set when Kind == OutcomeStop, and on an OutcomeEscalate that stops the child

	RestartDelay    time.Duration // set when Kind == OutcomeRestart
	PayloadLocation string        // set when Kind == OutcomeRestart
	Escalation      EscalationLevel

	EscalationLevel EscalationLevel // set when Kind == OutcomeEscalate
}

// RestartFunc is the sole hook by which the supervisor reenters the
// runtime: a caller-supplied callback invoked with the child's id,
// payload location, and the escalation level driving this restart.
type RestartFunc func(id, payloadLocation string, escalation EscalationLevel) error

// Supervisor exclusively owns the child table. State is mutated only in
// response to explicit RegisterChild/ReportStarted/ReportCrash/
// ExecuteRestart/Unregister/ShutdownAll calls.
type Supervisor struct {
	mu       sync.RWMutex
	children map[string]*Child
	defaults Spec

	audit   *audit.Log
	log     *logger.Logger
	restart RestartFunc
}

// New constructs a Supervisor. restart is invoked by ExecuteRestart and
// may be nil until SetRestartFunc is called, to break the façade ↔
// supervisor construction cycle.
func New(log *audit.Log, lg *logger.Logger, defaults config.SupervisorDefaults) *Supervisor {
	return &Supervisor{
		children: make(map[string]*Child),
		defaults: Spec{
			MaxRestarts:     defaults.MaxRestarts,
			IntensityWindow: defaults.IntensityWindow,
			BaseDelay:       defaults.BaseDelay,
			MaxDelay:        defaults.MaxDelay,
			BackoffFactor:   defaults.BackoffFactor,
		},
		audit: log,
		log:   lg,
	}
}

// SetRestartFunc installs the callback used by ExecuteRestart. Called
// once, after the façade that owns this Supervisor has finished
// constructing itself.
func (s *Supervisor) SetRestartFunc(fn RestartFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restart = fn
}

// RegisterChild adds a new supervised child in the Starting state.
func (s *Supervisor) RegisterChild(spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.children[spec.ID]; exists {
		return kerrors.AlreadyRegistered(spec.ID)
	}
	s.children[spec.ID] = newChild(spec, s.defaults)
	return nil
}

// Unregister removes a child from supervision entirely.
func (s *Supervisor) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.children[id]; !ok {
		return kerrors.NotFound("supervised_child", id)
	}
	delete(s.children, id)
	return nil
}

// ReportStarted transitions a child from Starting to Running.
func (s *Supervisor) ReportStarted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return kerrors.NotFound("supervised_child", id)
	}
	c.State = StateRunning
	return nil
}

// ReportCrash records a crash and decides stop/restart/escalate per the
// child's strategy, intensity window, and current escalation level.
func (s *Supervisor) ReportCrash(id, errString string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return Outcome{}, kerrors.NotFound("supervised_child", id)
	}

	now := time.Now()
	c.LastError = errString
	c.LastCrash = now
	c.TotalCrashes++
	c.State = StateCrashed

	switch c.Spec.Strategy {
	case Temporary:
		c.State = StateStopped
		c.LastStop = "never restarted (temporary)"
		return Outcome{Kind: OutcomeStop, StopReason: c.LastStop}, nil
	case Transient:
		if isNormalExit(errString) {
			c.State = StateStopped
			c.LastStop = errString
			return Outcome{Kind: OutcomeStop, StopReason: errString}, nil
		}
	case Permanent:
		// always falls through to restart/escalation logic below
	}

	if c.WindowStart.IsZero() {
		c.WindowStart = now
	} else if now.Sub(c.WindowStart) > c.Spec.IntensityWindow {
		c.RestartCount = 0
		c.WindowStart = now
		c.EscalationLevel = RestartWithState
	}

	if c.RestartCount >= c.Spec.MaxRestarts {
		c.EscalationLevel = c.EscalationLevel.next()
		c.RestartCount = 0

		if c.EscalationLevel >= RestartSupervisor {
			c.State = StateStopped
			c.LastStop = "restart limit exceeded"
			s.auditEscalation(id, c.EscalationLevel)
			return Outcome{Kind: OutcomeEscalate, EscalationLevel: c.EscalationLevel, StopReason: c.LastStop}, nil
		}

		s.auditEscalation(id, c.EscalationLevel)
		return Outcome{Kind: OutcomeEscalate, EscalationLevel: c.EscalationLevel}, nil
	}

	c.RestartCount++
	c.RestartAttempt = c.RestartCount
	delay := backoffDelay(c.Spec.BaseDelay, c.Spec.MaxDelay, c.Spec.BackoffFactor, c.RestartAttempt-1)
	c.State = StateRestarting

	return Outcome{
		Kind:            OutcomeRestart,
		RestartDelay:    delay,
		PayloadLocation: c.Spec.PayloadLocation,
		Escalation:      c.EscalationLevel,
	}, nil
}

func (s *Supervisor) auditEscalation(id string, level EscalationLevel) {
	s.audit.Append(audit.Event{
		Kind: audit.KindSupervisorEscalation,
		SupervisorEscalation: &audit.SupervisorEscalation{
			Name:  id,
			Level: int(level),
		},
	}, "supervisor")
}

// ExecuteRestart sleeps for outcome's delay, invokes the installed
// restart callback, and transitions the child back to Starting on
// success. It is the only place the supervisor calls back into the
// runtime it supervises.
func (s *Supervisor) ExecuteRestart(id string, outcome Outcome) error {
	if outcome.Kind != OutcomeRestart {
		return kerrors.ConfigurationBug("ExecuteRestart called with a non-restart outcome")
	}

	time.Sleep(outcome.RestartDelay)

	s.mu.RLock()
	fn := s.restart
	s.mu.RUnlock()
	if fn == nil {
		return kerrors.ConfigurationBug("supervisor restart function not installed")
	}

	if err := fn(id, outcome.PayloadLocation, outcome.Escalation); err != nil {
		return err
	}

	s.mu.Lock()
	attempt := 0
	if c, ok := s.children[id]; ok {
		c.State = StateStarting
		attempt = c.RestartAttempt
	}
	s.mu.Unlock()

	s.audit.Append(audit.Event{
		Kind: audit.KindModuleRestarted,
		ModuleRestarted: &audit.ModuleRestarted{
			Name:    id,
			Attempt: attempt,
		},
	}, "supervisor")

	return nil
}

// Status is a read-only snapshot of a supervised child, returned by
// GetStatus.
type Status struct {
	ID              string
	State           State
	RestartCount    int
	EscalationLevel EscalationLevel
	TotalCrashes    int
	LastError       string
}

// GetStatus returns a snapshot of one child's state.
func (s *Supervisor) GetStatus(id string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.children[id]
	if !ok {
		return Status{}, kerrors.NotFound("supervised_child", id)
	}
	return Status{
		ID:              id,
		State:           c.State,
		RestartCount:    c.RestartCount,
		EscalationLevel: c.EscalationLevel,
		TotalCrashes:    c.TotalCrashes,
		LastError:       c.LastError,
	}, nil
}

// CountByState is a read-only rollup used by the kernel's status()
// operation.
func (s *Supervisor) CountByState() map[State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[State]int)
	for _, c := range s.children {
		out[c.State]++
	}
	return out
}

// ShutdownAll transitions every child to Terminated. It does not invoke
// the restart callback.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.children {
		c.State = StateTerminated
	}
}
