// Copyright 2026 The gVisor Authors.
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

// Package context defines an internal context type.
//
// The given Context conforms to the standard Go context, but mandates
// additional methods that are specific to the VM core. The Context carries
// the logger of the thread of execution it represents, so that faults and
// evictions are reported against the task that caused them.
package context

import (
	"context"

	"gvisor.dev/vmcore/pkg/log"
)

// A Context represents a thread of execution (hereafter "goroutine" to
// reflect Go idiosyncrasy). It carries state associated with the goroutine
// across API boundaries.
//
// It is *not safe* to retain a Context passed to a function beyond the scope
// of that function call.
type Context interface {
	context.Context
	log.Logger
}

// logContext binds a logger to a standard context.
type logContext struct {
	context.Context
	log.Logger
}

// WithLogger returns a Context that derives from ctx and logs to l.
func WithLogger(ctx context.Context, l log.Logger) Context {
	return logContext{Context: ctx, Logger: l}
}

// Background returns an empty context using the default logger.
//
// Generally, one should use the Task as their context when available, or avoid
// having to use a context in places where a Task is unavailable.
//
// Using a Background context for tests is fine, as long as no values are
// needed from the context in the tested code paths.
func Background() Context {
	return WithLogger(context.Background(), log.Log())
}
