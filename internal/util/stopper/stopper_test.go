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

package stopper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoCollectsFirstError(t *testing.T) {
	c := WithContext(context.Background())
	boom := errors.New("boom")

	c.Go(func() error { return nil })
	c.Go(func() error { return boom })

	require.ErrorIs(t, c.Wait(), boom)
}

func TestStoppingFiresImmediatelyOnStop(t *testing.T) {
	c := WithContext(context.Background())

	select {
	case <-c.Stopping():
		t.Fatal("Stopping fired before Stop was called")
	default:
	}

	c.Stop(time.Second)

	select {
	case <-c.Stopping():
	case <-time.After(time.Second):
		t.Fatal("Stopping never fired")
	}
}

func TestStoppedFiresAfterGoroutinesDrain(t *testing.T) {
	c := WithContext(context.Background())
	release := make(chan struct{})

	c.Go(func() error {
		<-release
		return nil
	})

	c.Stop(0)

	select {
	case <-c.Stopped():
		t.Fatal("Stopped fired before the goroutine drained")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-c.Stopped():
	case <-time.After(time.Second):
		t.Fatal("Stopped never fired after the goroutine drained")
	}
}

func TestParentCancellationTriggersStop(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := WithContext(parent)
	cancel()

	select {
	case <-c.Stopping():
	case <-time.After(time.Second):
		t.Fatal("parent cancellation did not propagate to Stopping")
	}
}
