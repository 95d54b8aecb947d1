// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/periph-home/eclss/internal/actor"
	"github.com/periph-home/eclss/internal/metric"
)

type fakeControl struct {
	ppm int
}

type fakeSensor struct {
	mu sync.Mutex

	bringUpFailures int
	bringUpCalls    int

	pollErrors  []error // consumed in order; once exhausted, Poll succeeds
	pollCalls   int
	interval    time.Duration
	controlErr  error
	controlCall int32
}

func (f *fakeSensor) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bringUpCalls++
	if f.bringUpCalls <= f.bringUpFailures {
		return errors.New("not present")
	}
	return nil
}

func (f *fakeSensor) Poll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.pollCalls
	f.pollCalls++
	if idx < len(f.pollErrors) && f.pollErrors[idx] != nil {
		return f.pollErrors[idx]
	}
	return nil
}

func (f *fakeSensor) PollInterval() time.Duration {
	return f.interval
}

func (f *fakeSensor) HandleControl(ctx context.Context, msg fakeControl) error {
	atomic.AddInt32(&f.controlCall, 1)
	return f.controlErr
}

func newTestSupervisor(t *testing.T, s *fakeSensor) (*Supervisor[*fakeSensor, fakeControl], actor.Client[fakeControl, actor.Result[struct{}]], *StatusCell) {
	t.Helper()
	metrics := metric.NewSet()
	statusReg := NewStatusRegistry(4)
	status := statusReg.Register("fake")
	client, srv := actor.Split[fakeControl, actor.Result[struct{}]](4)
	sv := New[*fakeSensor, fakeControl]("fake", s, NewBus(nil), metrics, status, srv)
	sv.bringUpBackoff.Initial = time.Millisecond
	sv.bringUpBackoff.Max = 5 * time.Millisecond
	sv.bringUpBackoff.Reset()
	sv.pollBackoff.Initial = time.Millisecond
	sv.pollBackoff.Max = 5 * time.Millisecond
	sv.pollBackoff.Reset()
	return sv, client, status
}

func TestBringUpRetrySucceeds(t *testing.T) {
	s := &fakeSensor{bringUpFailures: 3, interval: time.Hour}
	sv, _, status := newTestSupervisor(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for status.Load() != StatusUp {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for sensor to come up")
		case <-time.After(time.Millisecond):
		}
	}
	s.mu.Lock()
	calls := s.bringUpCalls
	s.mu.Unlock()
	if calls != 4 {
		t.Fatalf("bringUpCalls = %d, want 4 (3 failures + 1 success)", calls)
	}
	cell := sv.metrics.SensorErrors.Register(metric.Labels{{Key: "sensor", Value: "fake"}})
	if got := cell.Value(); got != 3 {
		t.Fatalf("error counter = %d, want 3", got)
	}
	cancel()
	<-done
}

func TestPollRecoversAfterFailures(t *testing.T) {
	pollErrs := make([]error, 14)
	for i := 10; i < 14; i++ {
		pollErrs[i] = errors.New("transient")
	}
	s := &fakeSensor{interval: 2 * time.Millisecond, pollErrors: pollErrs}
	sv, _, status := newTestSupervisor(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	sawDown := false
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recovery")
		default:
		}
		if status.Load() == StatusDown {
			sawDown = true
		}
		s.mu.Lock()
		polls := s.pollCalls
		s.mu.Unlock()
		if sawDown && status.Load() == StatusUp && polls > 14 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !sawDown {
		t.Fatal("expected status to have been Down at some point")
	}
	cancel()
	<-done
}

func TestControlMessageHandledBetweenPolls(t *testing.T) {
	s := &fakeSensor{interval: time.Hour}
	sv, client, _ := newTestSupervisor(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	// Wait for bring-up to complete before sending a control message.
	time.Sleep(20 * time.Millisecond)

	rsp, err := client.Send(context.Background(), fakeControl{ppm: 420})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rsp.Err != nil {
		t.Fatalf("control message reply error: %v", rsp.Err)
	}
	if atomic.LoadInt32(&s.controlCall) != 1 {
		t.Fatalf("controlCall = %d, want 1", s.controlCall)
	}
	cancel()
	<-done
}

func TestStatusNeverReturnsToMissing(t *testing.T) {
	pollErrs := []error{errors.New("fail")}
	s := &fakeSensor{interval: time.Millisecond, pollErrors: pollErrs}
	sv, _, status := newTestSupervisor(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for status.Load() == StatusMissing {
		select {
		case <-deadline:
			t.Fatal("timed out waiting to leave Missing")
		case <-time.After(time.Millisecond):
		}
	}
	for i := 0; i < 50; i++ {
		if status.Load() == StatusMissing {
			t.Fatal("status regressed to Missing")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}
