// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package actor

import "context"

// Result is the reply payload for control messages whose handler itself
// can fail (e.g. "set measurement interval" rejecting a zero interval).
type Result[T any] struct {
	Val T
	Err error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Val: v} }

// Err wraps a failure.
func Err[T any](err error) Result[T] { return Result[T]{Err: err} }

// TryRequest sends req and collapses every failure mode — channel closed,
// reply canceled, or the handler's own reported error — into a single
// error, so a caller that only wants "did this work" doesn't need to
// distinguish ErrClosed/ErrCanceled from a handler-reported error.
func TryRequest[Req, T any](ctx context.Context, c Client[Req, Result[T]], req Req) (T, error) {
	rsp, err := c.Send(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return rsp.Val, rsp.Err
}
