package audit

import (
	"testing"

	"github.com/Michiganman2353/ESTA-Logic/internal/config"
)

func newTestLog(maxEntries int) *Log {
	return New(config.AuditOptions{MaxEntries: maxEntries})
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	l := newTestLog(10)
	e1 := l.Append(Event{Kind: KindKernelStarted, KernelStarted: &KernelStarted{Version: "0.1"}}, "kernel")
	e2 := l.Append(Event{Kind: KindKernelShutdown, KernelShutdown: &KernelShutdown{Reason: "test"}}, "kernel")
	if e1.Sequence != 1 || e2.Sequence != 2 {
		t.Errorf("got sequences %d, %d; want 1, 2", e1.Sequence, e2.Sequence)
	}
}

func TestVerifyChainValidOnFreshLog(t *testing.T) {
	l := newTestLog(10)
	for i := 0; i < 3; i++ {
		l.AppendCustom("test", "hello", "kernel")
	}
	result := l.VerifyChain()
	if !result.Valid {
		t.Errorf("expected valid chain, got invalid at sequence %d", result.FirstInvalid)
	}
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	l := newTestLog(10)
	l.AppendCustom("a", "one", "kernel")
	l.AppendCustom("b", "two", "kernel")
	l.AppendCustom("c", "three", "kernel")

	l.entries[0].Source = "tampered"

	result := l.VerifyChain()
	if result.Valid {
		t.Error("expected tamper to be detected")
	}
	if result.FirstInvalid != 1 {
		t.Errorf("got first invalid %d, want 1", result.FirstInvalid)
	}
}

func TestHeadDropRetainsMostRecent(t *testing.T) {
	l := newTestLog(5)
	for i := 0; i < 10; i++ {
		l.AppendCustom("x", "msg", "kernel")
	}
	all := l.All()
	if len(all) != 5 {
		t.Fatalf("got %d entries, want 5", len(all))
	}
	if all[0].Sequence != 6 || all[len(all)-1].Sequence != 10 {
		t.Errorf("got range %d..%d, want 6..10", all[0].Sequence, all[len(all)-1].Sequence)
	}
}

func TestHeadDropStillVerifies(t *testing.T) {
	l := newTestLog(5)
	for i := 0; i < 10; i++ {
		l.AppendCustom("x", "msg", "kernel")
	}
	result := l.VerifyChain()
	if !result.Valid {
		t.Errorf("expected trimmed chain to still verify, got invalid at %d", result.FirstInvalid)
	}
}

func TestQueryBySourceAndAfterSequence(t *testing.T) {
	l := newTestLog(100)
	l.AppendCustom("a", "1", "moduleA")
	l.AppendCustom("b", "2", "moduleB")
	l.AppendCustom("c", "3", "moduleA")

	matched := l.Query(Filter{Source: "moduleA", AfterSequence: 1})
	if len(matched) != 1 {
		t.Fatalf("got %d matches, want 1", len(matched))
	}
	if matched[0].Sequence != 3 {
		t.Errorf("got sequence %d, want 3", matched[0].Sequence)
	}
}

func TestQueryLimitReturnsMostRecent(t *testing.T) {
	l := newTestLog(100)
	for i := 0; i < 5; i++ {
		l.AppendCustom("x", "msg", "kernel")
	}
	matched := l.Query(Filter{Limit: 2})
	if len(matched) != 2 {
		t.Fatalf("got %d, want 2", len(matched))
	}
	if matched[0].Sequence != 4 || matched[1].Sequence != 5 {
		t.Errorf("got sequences %d, %d; want 4, 5", matched[0].Sequence, matched[1].Sequence)
	}
}

func TestAppendCustomRedactsMessage(t *testing.T) {
	l := newTestLog(10)
	entry := l.AppendCustom("leak-test", "token cap_abc_0123456789abcdef exposed", "kernel")
	if entry.Event.Custom.Message == "token cap_abc_0123456789abcdef exposed" {
		t.Error("expected capability token to be redacted from custom message")
	}
}

func TestSequenceHighWaterMark(t *testing.T) {
	l := newTestLog(10)
	if l.SequenceHighWaterMark() != 0 {
		t.Error("expected 0 on empty log")
	}
	l.AppendCustom("x", "y", "kernel")
	if l.SequenceHighWaterMark() != 1 {
		t.Error("expected 1 after one append")
	}
}
