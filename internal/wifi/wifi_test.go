// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/periph-home/eclss/internal/led"
)

// recordingDriver captures the last color set on the indicator.
type recordingDriver struct {
	mu   sync.Mutex
	last led.Color
}

func (d *recordingDriver) Set(c led.Color) error {
	d.mu.Lock()
	d.last = c
	d.mu.Unlock()
	return nil
}

func (d *recordingDriver) Last() led.Color {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

type fakeRadio struct {
	mu         sync.Mutex
	events     chan Event
	aps        []AccessPoint
	saved      Credentials
	hasSaved   bool
	apStarted  int
	connectErr error
	connected  []Credentials
	hasClient  bool
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{events: make(chan Event, 8)}
}

func (f *fakeRadio) Start(ctx context.Context) error { return nil }

func (f *fakeRadio) Scan(ctx context.Context) ([]AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aps, nil
}

func (f *fakeRadio) Connect(ctx context.Context, creds Credentials, channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = append(f.connected, creds)
	return nil
}

func (f *fakeRadio) StartAccessPoint(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apStarted++
	return nil
}

func (f *fakeRadio) SavedCredentials(ctx context.Context) (Credentials, bool, error) {
	return f.saved, f.hasSaved, nil
}

func (f *fakeRadio) HasAPClient() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasClient
}

func (f *fakeRadio) Events() <-chan Event {
	return f.events
}

func TestUnconfiguredStartsAccessPoint(t *testing.T) {
	radio := newFakeRadio()
	c := New(radio, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		radio.mu.Lock()
		started := radio.apStarted
		radio.mu.Unlock()
		if started > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for access point start")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestCredentialsTransitionToConnecting(t *testing.T) {
	radio := newFakeRadio()
	radio.aps = []AccessPoint{{SSID: "home", Channel: 6}}
	c := New(radio, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	c.Credentials() <- Credentials{SSID: "home", Password: "hunter2"}

	deadline := time.After(time.Second)
	for c.State() != Connecting {
		select {
		case <-deadline:
			t.Fatal("timed out waiting to reach Connecting")
		case <-time.After(time.Millisecond):
		}
	}

	radio.mu.Lock()
	got := radio.connected
	radio.mu.Unlock()
	if len(got) != 1 || got[0].SSID != "home" {
		t.Fatalf("connected = %v, want one call for %q", got, "home")
	}
	cancel()
	<-done
}

func TestStaConnectedThenIPAssignedReachesConnected(t *testing.T) {
	radio := newFakeRadio()
	radio.hasSaved = true
	radio.saved = Credentials{SSID: "home", Password: "hunter2"}
	driver := &recordingDriver{}
	c := New(radio, led.New(driver), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	radio.events <- Event{Kind: EventStaConnected}
	radio.events <- Event{Kind: EventIPAssigned}

	deadline := time.After(time.Second)
	for c.State() != Connected {
		select {
		case <-deadline:
			t.Fatal("timed out waiting to reach Connected")
		case <-time.After(time.Millisecond):
		}
	}

	// The indicator turns green when the link comes up.
	for driver.Last() != led.Green {
		select {
		case <-deadline:
			t.Fatalf("indicator = %v, want %v", driver.Last(), led.Green)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestDeassignedIPEntersError(t *testing.T) {
	radio := newFakeRadio()
	radio.hasSaved = true
	radio.saved = Credentials{SSID: "home"}
	c := New(radio, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	radio.events <- Event{Kind: EventIPDeassigned}

	deadline := time.After(time.Second)
	for c.State() != Error && c.State() != Unconfigured {
		select {
		case <-deadline:
			t.Fatal("timed out waiting to observe error recovery")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestCredentialsChannelClosedStopsCoordinator(t *testing.T) {
	radio := newFakeRadio()
	c := New(radio, nil, 4)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	close(c.creds)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error when the credentials channel closes")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coordinator to stop")
	}
}
