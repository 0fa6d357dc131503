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

// Package stopper provides a cooperative-cancellation context used to
// coordinate graceful shutdown of the engine's background goroutines.
//
// A stopper.Context wraps a context.Context with a second, softer
// signal: Stopping() fires when a shutdown has been requested, and
// Stopped() fires once the grace period has elapsed or every
// goroutine registered with Go has returned. Done() is the parent
// context's and fires only when the parent is done. Long-running loops should
// check Stopping() at safe checkpoints and wind down on their own
// schedule; they should treat Done() as a hard deadline.
package stopper

import (
	"context"
	"sync"
	"time"
)

// Context is a cooperative-cancellation context.
type Context struct {
	context.Context

	mu struct {
		sync.Mutex
		err  error
		wg   sync.WaitGroup
	}

	stopping chan struct{}
	stopOnce sync.Once

	stopped chan struct{}
}

// WithContext creates a new stopper.Context whose lifetime is bound to
// the parent context.
func WithContext(parent context.Context) *Context {
	ret := &Context{
		Context:  parent,
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go func() {
		<-parent.Done()
		ret.Stop(0)
	}()
	return ret
}

// Go runs fn in a new goroutine tracked by the Context. The Context
// will not be considered Stopped until every goroutine started with Go
// has returned.
func (c *Context) Go(fn func() error) {
	c.mu.Lock()
	c.mu.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.mu.wg.Done()
		if err := fn(); err != nil {
			c.mu.Lock()
			if c.mu.err == nil {
				c.mu.err = err
			}
			c.mu.Unlock()
		}
	}()
}

// Stop requests a graceful shutdown. Stopping() will fire immediately;
// the Stopped() channel is closed once every registered goroutine has
// returned or gracePeriod has elapsed, whichever comes first. A
// gracePeriod of zero waits indefinitely for registered goroutines to
// drain. Stop does not cancel the parent, so Done() is unaffected.
func (c *Context) Stop(gracePeriod time.Duration) {
	c.stopOnce.Do(func() { close(c.stopping) })

	go func() {
		drained := make(chan struct{})
		go func() {
			c.mu.wg.Wait()
			close(drained)
		}()

		if gracePeriod <= 0 {
			<-drained
		} else {
			select {
			case <-drained:
			case <-time.After(gracePeriod):
			}
		}
		select {
		case <-c.stopped:
		default:
			close(c.stopped)
		}
	}()
}

// Stopping returns a channel that is closed once Stop has been called.
func (c *Context) Stopping() <-chan struct{} {
	return c.stopping
}

// Stopped returns a channel that is closed once every goroutine
// registered with Go has returned, or the grace period passed to Stop
// has elapsed.
func (c *Context) Stopped() <-chan struct{} {
	return c.stopped
}

// Wait blocks until every goroutine started with Go has returned and
// returns the first non-nil error, if any, that one of them reported.
func (c *Context) Wait() error {
	c.mu.Lock()
	wg := &c.mu.wg
	c.mu.Unlock()
	wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.err
}
