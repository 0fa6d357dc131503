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

// Package idgen generates the opaque extraction identifiers that tie
// together a watermark record, its log lines, and its metric labels
// for a single run of a table's extraction.
package idgen

import "github.com/google/uuid"

// New returns a fresh, globally-unique extraction ID.
func New() string {
	return uuid.NewString()
}
