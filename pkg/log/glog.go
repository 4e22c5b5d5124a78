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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// GoogleEmitter formats messages as glog lines and passes them to the
// underlying emitter:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// glogTime is the timestamp layout of a glog line.
const glogTime = "0102 15:04:05.000000"

var pid = os.Getpid()

// levelChar returns the glog severity letter for level.
func levelChar(level Level) byte {
	switch level {
	case Warning:
		return 'W'
	case Info:
		return 'I'
	case Debug:
		return 'D'
	default:
		return '?'
	}
}

// callerLocation returns file:line of the caller depth frames above the
// function calling callerLocation.
func callerLocation(depth int) string {
	_, file, line, ok := runtime.Caller(depth + 2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Emit implements Emitter.Emit.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	var b strings.Builder
	b.Grow(64 + len(format))
	b.WriteByte(levelChar(level))
	b.WriteString(timestamp.Format(glogTime))
	fmt.Fprintf(&b, " %7d %s] ", pid, callerLocation(depth))
	// The header is escaped since the result is used as a format string.
	header := strings.ReplaceAll(b.String(), "%", "%%")
	g.Emitter.Emit(depth+1, level, timestamp, header+format+"\n", args...)
}
