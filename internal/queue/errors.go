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

package queue

import "errors"

// ErrClosed is returned by Push once the queue has delivered its SHUTDOWN event.
var ErrClosed = errors.New("queue: closed")

// ErrRateLimited is returned by Push when the optional ingress limiter has no
// tokens available.
var ErrRateLimited = errors.New("queue: rate limited")
