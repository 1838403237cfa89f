package supervisor

import (
	"errors"
	"testing"
	"time"

	"github.com/Michiganman2353/ESTA-Logic/internal/audit"
	"github.com/Michiganman2353/ESTA-Logic/internal/config"
	"github.com/Michiganman2353/ESTA-Logic/pkg/logger"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	log := audit.New(config.AuditOptions{MaxEntries: 100})
	lg := logger.New("supervisor", logger.Config{Level: "error", Format: "text"})
	return New(log, lg, config.SupervisorDefaults{
		MaxRestarts:     3,
		IntensityWindow: time.Minute,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
	})
}

func TestBackoffProgression(t *testing.T) {
	delays := []time.Duration{
		backoffDelay(100*time.Millisecond, 30*time.Second, 2.0, 0),
		backoffDelay(100*time.Millisecond, 30*time.Second, 2.0, 1),
		backoffDelay(100*time.Millisecond, 30*time.Second, 2.0, 2),
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("attempt %d: got %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	d := backoffDelay(time.Second, 5*time.Second, 2.0, 10)
	if d != 5*time.Second {
		t.Errorf("got %v, want capped 5s", d)
	}
}

func TestTransientNormalExitStops(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Transient})

	outcome, err := s.ReportCrash("c1", "normal")
	if err != nil {
		t.Fatalf("ReportCrash: %v", err)
	}
	if outcome.Kind != OutcomeStop {
		t.Errorf("got %s, want stop", outcome.Kind)
	}
}

func TestTransientAbnormalExitRestarts(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Transient})

	outcome, err := s.ReportCrash("c1", "segfault")
	if err != nil {
		t.Fatalf("ReportCrash: %v", err)
	}
	if outcome.Kind != OutcomeRestart {
		t.Errorf("got %s, want restart", outcome.Kind)
	}
}

func TestTemporaryNeverRestarts(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Temporary})

	outcome, err := s.ReportCrash("c1", "anything")
	if err != nil {
		t.Fatalf("ReportCrash: %v", err)
	}
	if outcome.Kind != OutcomeStop {
		t.Errorf("got %s, want stop", outcome.Kind)
	}
}

func TestExceedingMaxRestartsEscalates(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Permanent, MaxRestarts: 2, IntensityWindow: time.Minute})

	var last Outcome
	for i := 0; i < 3; i++ {
		outcome, err := s.ReportCrash("c1", "boom")
		if err != nil {
			t.Fatalf("ReportCrash #%d: %v", i, err)
		}
		last = outcome
	}
	if last.Kind != OutcomeEscalate {
		t.Errorf("got %s, want escalate after exceeding max restarts", last.Kind)
	}
	if last.EscalationLevel != RestartClean {
		t.Errorf("got level %d, want %d", last.EscalationLevel, RestartClean)
	}
}

func TestTopEscalationRungStillReportsEscalate(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Permanent, MaxRestarts: 1, IntensityWindow: time.Minute})

	var last Outcome
	for i := 0; i < 6; i++ {
		outcome, err := s.ReportCrash("c1", "boom")
		if err != nil {
			t.Fatalf("ReportCrash #%d: %v", i, err)
		}
		last = outcome
	}

	if last.Kind != OutcomeEscalate {
		t.Errorf("got %s, want escalate at the top rung too", last.Kind)
	}
	if last.EscalationLevel != RestartSupervisor {
		t.Errorf("got level %d, want %d", last.EscalationLevel, RestartSupervisor)
	}
	if last.StopReason == "" {
		t.Error("expected StopReason to be set alongside the escalation")
	}

	status, err := s.GetStatus("c1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != StateStopped {
		t.Errorf("got state %s, want stopped", status.State)
	}
}

func TestExecuteRestartInvokesCallback(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Permanent, PayloadLocation: "/tmp/m1.wasm"})

	called := false
	s.SetRestartFunc(func(id, payload string, esc EscalationLevel) error {
		called = true
		if id != "c1" || payload != "/tmp/m1.wasm" {
			t.Errorf("unexpected callback args: %s %s", id, payload)
		}
		return nil
	})

	outcome, err := s.ReportCrash("c1", "boom")
	if err != nil {
		t.Fatalf("ReportCrash: %v", err)
	}
	outcome.RestartDelay = 0 // don't actually sleep in tests

	if err := s.ExecuteRestart("c1", outcome); err != nil {
		t.Fatalf("ExecuteRestart: %v", err)
	}
	if !called {
		t.Error("expected restart callback to be invoked")
	}

	status, err := s.GetStatus("c1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.State != StateStarting {
		t.Errorf("got state %s, want starting", status.State)
	}
}

func TestExecuteRestartPropagatesCallbackError(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Permanent})
	s.SetRestartFunc(func(id, payload string, esc EscalationLevel) error {
		return errors.New("restart failed")
	})

	outcome, _ := s.ReportCrash("c1", "boom")
	outcome.RestartDelay = 0

	if err := s.ExecuteRestart("c1", outcome); err == nil {
		t.Error("expected callback error to propagate")
	}
}

func TestShutdownAllTerminatesChildren(t *testing.T) {
	s := newTestSupervisor(t)
	s.RegisterChild(Spec{ID: "c1", Strategy: Permanent})
	s.RegisterChild(Spec{ID: "c2", Strategy: Permanent})

	s.ShutdownAll()

	counts := s.CountByState()
	if counts[StateTerminated] != 2 {
		t.Errorf("got %d terminated, want 2", counts[StateTerminated])
	}
}
