package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestFirstWaitIsImmediate(t *testing.T) {
	l := New(time.Second)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait took %v, want immediate", elapsed)
	}
}

func TestWaitSpacesCalls(t *testing.T) {
	const delay = 50 * time.Millisecond
	l := New(delay)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay-5*time.Millisecond {
		t.Errorf("second Wait returned after %v, want at least %v", elapsed, delay)
	}
}

func TestZeroDelayNeverBlocks(t *testing.T) {
	testCases := []struct {
		name  string
		delay time.Duration
	}{
		{name: "zero", delay: 0},
		{name: "negative", delay: -time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(tc.delay)
			start := time.Now()
			for i := 0; i < 10; i++ {
				if err := l.Wait(context.Background()); err != nil {
					t.Fatalf("Wait failed: %v", err)
				}
			}
			if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
				t.Errorf("10 waits took %v, want no blocking", elapsed)
			}
		})
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	l := New(time.Minute)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait returned nil, want context error during long delay")
	}
}
