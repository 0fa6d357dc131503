// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package retry implements a small exponential-backoff helper for
// operations against the source warehouse and sink database, both of
// which are expected to fail transiently from time to time.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Policy configures the backoff schedule used by Do.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Factor      float64
}

// DefaultPolicy is used when a zero-value Policy is supplied to Do: 3
// attempts, a 30-second base delay, doubling each retry.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Initial:     30 * time.Second,
	Max:         120 * time.Second,
	Factor:      2,
}

// Classifier decides whether an error returned by the operation should
// be retried. A nil Classifier retries every error.
type Classifier func(error) bool

// Do calls fn, retrying according to p whenever fn returns an error
// that retryable accepts. It gives up and returns the last error once
// MaxAttempts is reached, the context is canceled, or retryable
// rejects the error.
func Do(ctx context.Context, p Policy, retryable Classifier, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p = DefaultPolicy
	}

	delay := p.Initial
	if delay <= 0 {
		delay = DefaultPolicy.Initial
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)+1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}

		delay = time.Duration(float64(delay) * p.Factor)
		if p.Max > 0 && delay > p.Max {
			delay = p.Max
		}
	}
	return errors.Wrapf(lastErr, "gave up after %d attempts", p.MaxAttempts)
}
