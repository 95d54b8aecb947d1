// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package actor implements the bounded request/response channel used for
// operator control messages (recalibrate, reset, set-measurement-interval)
// sent from the HTTP handlers to a sensor supervisor.
//
// It is a bounded multi-producer, single-consumer channel of envelopes,
// each carrying a reply channel the consumer writes into once. Go's
// buffered channels already recycle their backing storage, so there is no
// per-message allocation beyond the envelope and its one-shot reply
// channel.
package actor

import (
	"context"
	"errors"
)

// ErrClosed is returned to a caller whose request could not be delivered
// because the consumer side has stopped receiving.
var ErrClosed = errors.New("actor: channel closed")

// ErrCanceled is returned when the consumer received the request but
// dropped it without sending a reply.
var ErrCanceled = errors.New("actor: request canceled")

// ErrFull is returned by TrySend when the channel's buffer is exhausted;
// HTTP handlers surface it as a 500.
var ErrFull = errors.New("actor: channel full")

// Envelope carries one request and the one-shot channel its reply will
// arrive on.
type Envelope[Req, Rsp any] struct {
	Req   Req
	reply chan Rsp
}

// Reply sends rsp to the envelope's caller. It must be called at most once.
func (e *Envelope[Req, Rsp]) Reply(rsp Rsp) {
	e.reply <- rsp
	close(e.reply)
}

// Cancel signals that the consumer observed the request but will not
// reply, completing the caller's wait with ErrCanceled.
func (e *Envelope[Req, Rsp]) Cancel() {
	close(e.reply)
}

// Wait blocks until the consumer replies, cancels, or ctx is canceled. It is
// the TrySend counterpart to Client.Send's second stage, for callers (like
// HTTP handlers) that submitted non-blockingly but can still wait on the
// result.
func (e *Envelope[Req, Rsp]) Wait(ctx context.Context) (Rsp, error) {
	var zero Rsp
	select {
	case rsp, ok := <-e.reply:
		if !ok {
			return zero, ErrCanceled
		}
		return rsp, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Channel is a bounded request/response channel: Client.Send blocks until
// the Actor replies (or the channel is closed, or the consumer cancels);
// Actor.Recv yields envelopes for the consumer to handle.
type Channel[Req, Rsp any] struct {
	envelopes chan *Envelope[Req, Rsp]
	closed    chan struct{}
}

// New creates a request/response channel with the given buffer capacity.
func New[Req, Rsp any](capacity int) *Channel[Req, Rsp] {
	return &Channel[Req, Rsp]{
		envelopes: make(chan *Envelope[Req, Rsp], capacity),
		closed:    make(chan struct{}),
	}
}

// Client is the producer handle: HTTP handlers and other callers hold one
// of these to submit control messages.
type Client[Req, Rsp any] struct {
	ch *Channel[Req, Rsp]
}

// Actor is the consumer handle: exactly one sensor supervisor owns one of
// these per sensor.
type Actor[Req, Rsp any] struct {
	ch *Channel[Req, Rsp]
}

// Split returns the Client and Actor halves of a fresh channel.
func Split[Req, Rsp any](capacity int) (Client[Req, Rsp], Actor[Req, Rsp]) {
	ch := New[Req, Rsp](capacity)
	return Client[Req, Rsp]{ch}, Actor[Req, Rsp]{ch}
}

// Send submits req and blocks until the actor replies, the channel closes,
// or ctx is canceled.
func (c Client[Req, Rsp]) Send(ctx context.Context, req Req) (Rsp, error) {
	var zero Rsp
	env := &Envelope[Req, Rsp]{Req: req, reply: make(chan Rsp, 1)}
	select {
	case c.ch.envelopes <- env:
	case <-c.ch.closed:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case rsp, ok := <-env.reply:
		if !ok {
			return zero, ErrCanceled
		}
		return rsp, nil
	case <-c.ch.closed:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TrySend submits req without blocking, for HTTP handlers that must not
// await a sensor goroutine: it enqueues and returns, surfacing a full
// buffer as ErrFull rather than blocking the caller.
func (c Client[Req, Rsp]) TrySend(req Req) (*Envelope[Req, Rsp], error) {
	env := &Envelope[Req, Rsp]{Req: req, reply: make(chan Rsp, 1)}
	select {
	case <-c.ch.closed:
		return nil, ErrClosed
	default:
	}
	select {
	case c.ch.envelopes <- env:
		return env, nil
	default:
		return nil, ErrFull
	}
}

// Recv blocks until an envelope is available or ctx is canceled.
func (a Actor[Req, Rsp]) Recv(ctx context.Context) (*Envelope[Req, Rsp], error) {
	select {
	case env := <-a.ch.envelopes:
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chan exposes the raw envelope channel so a consumer can race it against
// other events in a single select statement; the sensor supervisor races
// the control channel against its poll timer this way.
func (a Actor[Req, Rsp]) Chan() <-chan *Envelope[Req, Rsp] {
	return a.ch.envelopes
}

// Close marks the channel closed: pending and future Client.Send/TrySend
// calls fail with ErrClosed. It must be called at most once; a second call
// panics.
func (a Actor[Req, Rsp]) Close() {
	close(a.ch.closed)
}
