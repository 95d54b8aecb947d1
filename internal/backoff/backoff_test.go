// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitDoublesUpToMax(t *testing.T) {
	b := New("test", time.Millisecond).WithMax(8 * time.Millisecond)
	ctx := context.Background()
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond, 8 * time.Millisecond}
	for i, w := range want {
		if b.Current() != w {
			t.Fatalf("iteration %d: Current() = %s, want %s", i, b.Current(), w)
		}
		if err := b.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestResetRestoresInitial(t *testing.T) {
	b := New("test", time.Millisecond).WithMax(time.Second)
	_ = b.Wait(context.Background())
	_ = b.Wait(context.Background())
	if b.Current() == time.Millisecond {
		t.Fatal("expected backoff to have grown")
	}
	b.Reset()
	if b.Current() != time.Millisecond {
		t.Fatalf("Current() after Reset = %s, want %s", b.Current(), time.Millisecond)
	}
}

func TestWaitCanceled(t *testing.T) {
	b := New("test", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Wait(ctx); err == nil {
		t.Fatal("expected Wait to return an error on canceled context")
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	errPermanent := errors.New("permanent")
	calls := 0
	r := NewRetry("test", 5).WithPredicate(func(err error) bool {
		return !errors.Is(err, errPermanent)
	})
	err := r.Run(func() error {
		calls++
		return errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("err = %v, want errPermanent", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable should fail immediately)", calls)
	}
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	calls := 0
	r := NewRetry("test", 3)
	err := r.Run(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	r := NewRetry("test", 2)
	err := r.Run(func() error {
		calls++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
}
