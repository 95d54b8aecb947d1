// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wifi implements the coordinator state machine that mediates
// between the device's self-hosted access point, a configured home
// network, and the HTTP credentials form. The vendor WiFi/event-loop/NVS
// layer lives behind the Radio interface; this package only consumes it.
package wifi

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/periph-home/eclss/internal/backoff"
	"github.com/periph-home/eclss/internal/led"
)

// State is the coordinator's link state.
type State int

// Valid State values.
const (
	Unconfigured State = iota
	Connecting
	Connected
	Disconnected
	Error
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) indicator() led.Status {
	switch s {
	case Error:
		return led.StatusError
	case Connecting:
		return led.StatusConnecting
	case Connected:
		return led.StatusConnected
	default:
		return led.StatusUnconfigured
	}
}

// Credentials are posted from the HTTP handler for /wifi/select.
type Credentials struct {
	SSID     string
	Password string
}

// AccessPoint describes one network seen by the last scan.
type AccessPoint struct {
	SSID    string
	Channel int
	RSSI    int
}

// EventKind discriminates the vendor WiFi/IP event-loop events this
// coordinator reacts to.
type EventKind int

// Valid EventKind values.
const (
	EventStaConnected EventKind = iota
	EventStaDisconnected
	EventApStaConnected
	EventApStaDisconnected
	EventIPAssigned
	EventIPDeassigned
	EventOther
)

// Event is one vendor WiFi or IP event-loop notification.
type Event struct {
	Kind EventKind
}

// Radio is the vendor WiFi peripheral collaborator: starting the radio,
// scanning, connecting as a station, running the softAP, and the event
// stream all belong to it.
type Radio interface {
	Start(ctx context.Context) error
	Scan(ctx context.Context) ([]AccessPoint, error)
	Connect(ctx context.Context, creds Credentials, channel int) error
	StartAccessPoint(ctx context.Context) error
	SavedCredentials(ctx context.Context) (Credentials, bool, error)
	HasAPClient() bool
	Events() <-chan Event
}

// Coordinator drives the WiFi state machine on its own goroutine. Its state
// is only ever mutated by that goroutine, but State() may be called from
// other goroutines (this package's tests poll it), so it's stored in an
// atomic rather than a plain field.
type Coordinator struct {
	radio   Radio
	led     *led.Indicator
	creds   chan Credentials
	state   atomic.Int32
	backoff *backoff.Backoff

	// lastCreds is the station configuration most recently attempted,
	// reused by the reconnect timer. Only the Run goroutine touches it.
	lastCreds Credentials

	mu  sync.RWMutex
	aps []AccessPoint
}

// New creates a coordinator. credentialsCapacity bounds the channel fed by
// the HTTP /wifi/select handler.
func New(radio Radio, indicator *led.Indicator, credentialsCapacity int) *Coordinator {
	c := &Coordinator{
		radio:   radio,
		led:     indicator,
		creds:   make(chan Credentials, credentialsCapacity),
		backoff: backoff.New("wifi.reconnect", 500*time.Millisecond),
	}
	c.state.Store(int32(Unconfigured))
	return c
}

// Credentials returns the send side of the credentials channel, for the
// HTTP handler to push into.
func (c *Coordinator) Credentials() chan<- Credentials {
	return c.creds
}

// AccessPoints returns a snapshot of the last scan.
func (c *Coordinator) AccessPoints() []AccessPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AccessPoint, len(c.aps))
	copy(out, c.aps)
	return out
}

func (c *Coordinator) setAccessPoints(aps []AccessPoint) {
	c.mu.Lock()
	c.aps = aps
	c.mu.Unlock()
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Run brings the radio up, performs the initial scan, restores any saved
// station credentials, and then drives the event loop until ctx is
// canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.radio.Start(ctx); err != nil {
		return fmt.Errorf("wifi: starting radio: %w", err)
	}

	if aps, err := c.radio.Scan(ctx); err != nil {
		log.Printf("wifi: initial scan failed: %s", err)
	} else {
		c.setAccessPoints(aps)
	}

	if creds, ok, err := c.radio.SavedCredentials(ctx); err != nil {
		log.Printf("wifi: failed to load saved credentials: %s", err)
	} else if ok {
		log.Printf("wifi: restoring saved station configuration for %q", creds.SSID)
		c.lastCreds = creds
		c.state.Store(int32(Connecting))
		if err := c.radio.Connect(ctx, creds, 0); err != nil {
			log.Printf("wifi: failed to reconnect to saved network: %s", err)
			c.state.Store(int32(Error))
		}
	} else {
		if err := c.radio.StartAccessPoint(ctx); err != nil {
			log.Printf("wifi: failed to start access point: %s", err)
			c.state.Store(int32(Error))
		}
	}

	c.setIndicator()
	return c.loop(ctx)
}

func (c *Coordinator) setIndicator() {
	if c.led == nil {
		return
	}
	if err := c.led.Set(c.State().indicator()); err != nil {
		log.Printf("wifi: failed to set indicator: %s", err)
	}
}

func (c *Coordinator) loop(ctx context.Context) error {
	var reconnect <-chan time.Time
	for {
		c.setIndicator()

		switch c.State() {
		case Error:
			log.Printf("wifi: in error state; falling back to access point mode")
			if err := c.radio.StartAccessPoint(ctx); err != nil {
				log.Printf("wifi: failed to start access point: %s", err)
			} else {
				c.state.Store(int32(Unconfigured))
			}
			reconnect = nil
		case Disconnected:
			d := c.backoff.Current()
			log.Printf("wifi: reconnecting in %s...", d)
			reconnect = time.After(d)
			c.backoff.Advance()
			// Scan-triggered AP-list refresh: a fresh reconnect attempt is a
			// natural point to pick up newly visible networks.
			if aps, err := c.radio.Scan(ctx); err == nil {
				c.setAccessPoints(aps)
			}
		default:
			reconnect = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-c.radio.Events():
			c.handleEvent(ev)

		case creds, ok := <-c.creds:
			if !ok {
				// A dropped credentials sender is fatal to this coordinator.
				return fmt.Errorf("wifi: credentials channel closed")
			}
			c.handleCredentials(ctx, creds)

		case <-reconnect:
			reconnect = nil
			if c.radio.HasAPClient() {
				log.Printf("wifi: skipping reconnect; a softAP client is connected")
				continue
			}
			if err := c.radio.Connect(ctx, c.lastCreds, 0); err != nil {
				log.Printf("wifi: reconnect failed: %s", err)
				c.state.Store(int32(Error))
				continue
			}
			c.state.Store(int32(Connecting))
		}
	}
}

func (c *Coordinator) handleEvent(ev Event) {
	switch ev.Kind {
	case EventStaConnected:
		log.Printf("wifi: associated with access point, awaiting IP assignment")
		c.state.Store(int32(Connecting))
		c.backoff.Reset()
	case EventStaDisconnected:
		log.Printf("wifi: disconnected (was %s)", c.State())
		c.state.Store(int32(Disconnected))
	case EventApStaConnected, EventApStaDisconnected:
		// Tracked via Radio.HasAPClient; nothing to do here.
	case EventIPAssigned:
		log.Printf("wifi: IP assigned")
		c.state.Store(int32(Connected))
	case EventIPDeassigned:
		log.Printf("wifi: IP deassigned")
		c.state.Store(int32(Error))
	}
}

func (c *Coordinator) handleCredentials(ctx context.Context, creds Credentials) {
	log.Printf("wifi: received credentials for %q", creds.SSID)
	c.lastCreds = creds
	channel := 0
	for _, ap := range c.AccessPoints() {
		if ap.SSID == creds.SSID {
			channel = ap.Channel
			break
		}
	}
	if err := c.radio.Connect(ctx, creds, channel); err != nil {
		log.Printf("wifi: failed to connect to %q: %s", creds.SSID, err)
		c.state.Store(int32(Error))
		return
	}
	c.state.Store(int32(Connecting))
}
