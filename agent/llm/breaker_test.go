package llm

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	b := NewBreaker("dep", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	b.RecordFailure()
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}

	err := b.Allow()
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Allow() on open breaker = %v, want *OpenError", err)
	}
	if openErr.Dependency != "dep" {
		t.Fatalf("unexpected dependency: %s", openErr.Dependency)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker("dep", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state = %s, want closed after interleaved success", got)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker("dep", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Nanosecond})

	b.RecordFailure()
	time.Sleep(time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe Allow() error = %v", err)
	}
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s, want half-open", got)
	}

	// The probe is in flight: further requests are rejected.
	if err := b.Allow(); err == nil {
		t.Fatal("second Allow() during probe should be rejected")
	}

	b.RecordSuccess()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("state after successful probe = %s, want closed", got)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after close error = %v", err)
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker("dep", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	b.RecordFailure()

	// Force the timeout to elapse instead of sleeping an hour.
	b.mu.Lock()
	b.lastFailure = time.Now().Add(-2 * time.Hour)
	b.mu.Unlock()

	if err := b.Allow(); err != nil {
		t.Fatalf("probe Allow() error = %v", err)
	}
	b.RecordFailure()

	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state after failed probe = %s, want open", got)
	}
	if err := b.Allow(); err == nil {
		t.Fatal("Allow() right after reopening should be rejected")
	}
}

func TestBreakerStateStrings(t *testing.T) {
	t.Parallel()

	cases := map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half-open",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("String(%d) = %s, want %s", state, got, want)
		}
	}
}

func TestRegistryStates(t *testing.T) {
	t.Parallel()

	reg := NewBreakerRegistry()
	reg.Register(DependencyPrimary, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	reg.Register(DependencyCalendar, CalendarBreakerConfig)

	reg.Get(DependencyPrimary).RecordFailure()

	states := reg.States()
	if states[DependencyPrimary] != "open" {
		t.Fatalf("primary state = %s, want open", states[DependencyPrimary])
	}
	if states[DependencyCalendar] != "closed" {
		t.Fatalf("calendar state = %s, want closed", states[DependencyCalendar])
	}
}

func TestDoRecordsOutcomes(t *testing.T) {
	t.Parallel()

	reg := NewBreakerRegistry()
	reg.Register("dep", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	boom := errors.New("boom")
	calls := 0
	fail := func() (string, error) { calls++; return "", boom }

	if _, err := Do(reg, "dep", fail); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want boom", err)
	}
	if _, err := Do(reg, "dep", fail); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want boom", err)
	}

	// Breaker is open now: the call func must not run again.
	_, err := Do(reg, "dep", fail)
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Do() on open breaker = %v, want *OpenError", err)
	}
	if calls != 2 {
		t.Fatalf("call count = %d, want 2", calls)
	}
}

func TestDoReturnsValueOnSuccess(t *testing.T) {
	t.Parallel()

	reg := NewBreakerRegistry()
	out, err := Do(reg, "dep", func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out != 42 {
		t.Fatalf("Do() = %d, want 42", out)
	}
}
