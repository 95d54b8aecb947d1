// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"log"
	"time"

	"github.com/periph-home/eclss/internal/actor"
	"github.com/periph-home/eclss/internal/backoff"
	"github.com/periph-home/eclss/internal/metric"
)

// Sensor is the capability every adapter implements: bring-up, one poll
// cycle, the sensor's poll cadence, and control-message handling.
// C is the sensor's own control-message type — a tagged union in idiomatic
// Go terms is just an interface or a small struct of optional fields; each
// adapter picks whichever fits its command set, and sensors that accept no
// commands use struct{}.
type Sensor[C any] interface {
	BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error
	Poll(ctx context.Context) error
	PollInterval() time.Duration
	HandleControl(ctx context.Context, msg C) error
}

// Supervisor drives exactly one sensor instance on its own goroutine: it
// owns bring-up retries, the poll/backoff timer, and the control channel.
// S is the concrete adapter type implementing Sensor[C].
type Supervisor[S Sensor[C], C any] struct {
	Name    string
	sensor  S
	bus     *Bus
	metrics *metric.Set
	status  *StatusCell
	control actor.Actor[C, actor.Result[struct{}]]

	interval time.Duration

	bringUpBackoff *backoff.Backoff
	pollBackoff    *backoff.Backoff
}

// New creates a supervisor for sensor, to be driven by Run on its own
// goroutine. control is the consumer half of this sensor's actor channel;
// the matching actor.Client half is handed to the HTTP handlers that can
// issue commands to this sensor (e.g. CO2 calibration).
func New[S Sensor[C], C any](name string, sensor S, bus *Bus, metrics *metric.Set, status *StatusCell, control actor.Actor[C, actor.Result[struct{}]]) *Supervisor[S, C] {
	return &Supervisor[S, C]{
		Name:           name,
		sensor:         sensor,
		bus:            bus,
		metrics:        metrics,
		status:         status,
		control:        control,
		bringUpBackoff: backoff.New(name+".bringup", 250*time.Millisecond),
		pollBackoff:    backoff.New(name+".poll", 250*time.Millisecond),
	}
}

// WithPollInterval overrides the sensor's own default cadence, for
// operator-configured poll intervals.
func (sv *Supervisor[S, C]) WithPollInterval(d time.Duration) *Supervisor[S, C] {
	sv.interval = d
	return sv
}

// pollInterval returns the operator override if one is set, otherwise the
// sensor's own default cadence.
func (sv *Supervisor[S, C]) pollInterval() time.Duration {
	if sv.interval > 0 {
		return sv.interval
	}
	return sv.sensor.PollInterval()
}

func (sv *Supervisor[S, C]) countError() {
	sv.metrics.SensorErrors.Register(metric.Labels{{Key: "sensor", Value: sv.Name}}).Inc()
}

// Run blocks until ctx is canceled, cycling the sensor through bring-up and
// polling. It never returns a value: every failure is handled locally by
// logging and adjusting status, so no error crosses the task boundary.
func (sv *Supervisor[S, C]) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := sv.sensor.BringUp(ctx, sv.bus, sv.metrics); err != nil {
			log.Printf("%s: bring-up failed: %s", sv.Name, err)
			sv.countError()
			if waitErr := sv.bringUpBackoff.Wait(ctx); waitErr != nil {
				return
			}
			continue
		}
		break
	}

	log.Printf("%s: up", sv.Name)
	sv.status.markUp()
	sv.bringUpBackoff.Reset()
	sv.pollBackoff.Reset()
	sv.pollLoop(ctx)
}

func (sv *Supervisor[S, C]) pollLoop(ctx context.Context) {
	timer := time.NewTimer(sv.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-sv.control.Chan():
			sv.handleControl(ctx, env)
		case <-timer.C:
			if sv.doPoll(ctx) {
				timer.Reset(sv.pollInterval())
			} else {
				d := sv.pollBackoff.Current()
				sv.pollBackoff.Advance()
				timer.Reset(d)
			}
		}
	}
}

// doPoll runs one measurement cycle and updates status, returning whether
// it succeeded.
func (sv *Supervisor[S, C]) doPoll(ctx context.Context) bool {
	if err := sv.sensor.Poll(ctx); err != nil {
		log.Printf("%s: poll error: %s", sv.Name, err)
		sv.enterDown()
		return false
	}
	sv.status.markUp()
	sv.pollBackoff.Reset()
	return true
}

// enterDown marks the sensor Down. Each transition into Down bumps the
// sensor's entry in the error counter family exactly once; staying Down
// across repeated poll failures does not.
func (sv *Supervisor[S, C]) enterDown() {
	wasDown := sv.status.Load() == StatusDown
	sv.status.markDown()
	if !wasDown {
		sv.countError()
	}
}

func (sv *Supervisor[S, C]) handleControl(ctx context.Context, env *actor.Envelope[C, actor.Result[struct{}]]) {
	if err := sv.sensor.HandleControl(ctx, env.Req); err != nil {
		log.Printf("%s: control message failed: %s", sv.Name, err)
		sv.enterDown()
		env.Reply(actor.Err[struct{}](err))
		return
	}
	env.Reply(actor.Ok(struct{}{}))
}
