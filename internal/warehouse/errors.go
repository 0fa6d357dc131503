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

package warehouse

import "github.com/pkg/errors"

// Class categorizes a warehouse error so that callers can decide
// whether to retry, per the error-classification taxonomy.
type Class int

// The warehouse error classes.
const (
	ClassUnknown Class = iota
	ClassTransient
	ClassPermanent
	ClassAuth
	ClassTimeout
)

// classifiedError carries a Class alongside the wrapped cause.
type classifiedError struct {
	class Class
	cause error
}

func (e *classifiedError) Error() string { return e.cause.Error() }
func (e *classifiedError) Unwrap() error { return e.cause }

// Classify wraps err with the given class so that ClassOf can later
// recover it.
func Classify(err error, class Class) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: class, cause: err}
}

// ClassOf returns the Class attached to err by Classify, or
// ClassUnknown if none was attached.
func ClassOf(err error) Class {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassUnknown
}

// Retryable reports whether err should be retried by the warehouse
// reader's backoff policy: transient errors and timeouts are, auth
// and permanent errors are not.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassTimeout:
		return true
	default:
		return false
	}
}
