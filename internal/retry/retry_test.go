package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func classify(err error) Classification {
	if errors.Is(err, errFatal) {
		return Fatal
	}
	return Retryable
}

func TestDoRetriesTransientFailures(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (two retries then success)", calls)
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	p := &Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("err = %v, want fatal error surfaced", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (fatal is never retried)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("err = %v, want last transient error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoValueReturnsResult(t *testing.T) {
	p := &Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	got, err := DoValue(context.Background(), p, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("DoValue failed: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
}

func TestDoDefaultsToSingleAttemptMinimum(t *testing.T) {
	p := &Policy{MaxAttempts: 0, BaseDelay: time.Millisecond, Classify: classify}

	calls := 0
	_ = p.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLinearBackOffDelays(t *testing.T) {
	b := &linearBackOff{base: 10 * time.Millisecond}

	testCases := []struct {
		name string
		want time.Duration
	}{
		{name: "first", want: 10 * time.Millisecond},
		{name: "second", want: 20 * time.Millisecond},
		{name: "third", want: 30 * time.Millisecond},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.NextBackOff(); got != tc.want {
				t.Errorf("NextBackOff() = %v, want %v", got, tc.want)
			}
		})
	}

	b.Reset()
	if got := b.NextBackOff(); got != 10*time.Millisecond {
		t.Errorf("NextBackOff() after Reset = %v, want %v", got, 10*time.Millisecond)
	}
}
