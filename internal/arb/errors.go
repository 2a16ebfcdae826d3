/*
Copyright 2026 The Cocotabled Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package arb

import "errors"

// The error taxonomy of spec §7, as sentinels rather than typed exceptions: every
// failure inside the arbitration thread is contained and reported through these,
// never by panicking or tearing down the serializer goroutine.
var (
	// ErrCapacityExhausted signals an arena or queue is full.
	ErrCapacityExhausted = errors.New("cocotable: capacity exhausted")
	// ErrInvalidArgument signals a malformed request, an out-of-range value, or an
	// unknown resource code.
	ErrInvalidArgument = errors.New("cocotable: invalid argument")
	// ErrPolicyViolation signals an UPDATE with a shorter duration, including any
	// attempt to shorten an infinite-duration request.
	ErrPolicyViolation = errors.New("cocotable: policy violation")
	// ErrUnknownHandle signals an UPDATE referencing a handle the table no longer
	// (or never did) hold live. REMOVE/EXPIRY of such a handle is a no-op instead.
	ErrUnknownHandle = errors.New("cocotable: unknown request handle")
)
