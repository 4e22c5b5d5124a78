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

// Package contexttest builds a test context.Context.
package contexttest

import (
	"context"
	"testing"

	vmcontext "gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/log"
)

// Context returns a Context that may be used in tests. Log output is routed
// through tb.Logf at debug level.
func Context(tb testing.TB) vmcontext.Context {
	l := &log.BasicLogger{
		Level:   log.Debug,
		Emitter: &log.TestEmitter{TestLogger: tb},
	}
	return vmcontext.WithLogger(context.Background(), l)
}
