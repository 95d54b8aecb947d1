// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package backoff

import "log"

// Retry synchronously reruns a fallible operation up to MaxRetries times,
// consulting ShouldRetry on each failure to decide whether this error kind
// is worth retrying at all. A non-retryable error fails immediately
// regardless of remaining budget.
type Retry struct {
	Name        string
	MaxRetries  int
	ShouldRetry func(error) bool
}

// NewRetry creates a Retry that retries every error kind up to maxRetries
// times.
func NewRetry(name string, maxRetries int) *Retry {
	return &Retry{
		Name:        name,
		MaxRetries:  maxRetries,
		ShouldRetry: func(error) bool { return true },
	}
}

// WithPredicate overrides which errors are considered retryable.
func (r *Retry) WithPredicate(shouldRetry func(error) bool) *Retry {
	r.ShouldRetry = shouldRetry
	return r
}

// Run calls op, retrying on failure per the configured policy, and returns
// the first success or the final (possibly non-retryable) error.
func (r *Retry) Run(op func() error) error {
	retries := r.MaxRetries
	for {
		err := op()
		if err == nil {
			return nil
		}
		if retries <= 0 || (r.ShouldRetry != nil && !r.ShouldRetry(err)) {
			return err
		}
		retries--
		log.Printf("%s: retrying: %s (%d retries remaining)", r.Name, err, retries)
	}
}
