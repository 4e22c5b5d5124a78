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


package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/vmsim/config"
)

func TestNewTarget(t *testing.T) {
	for _, test := range []struct {
		name       string
		logFile    bool
		alsoStderr bool
		wantFile   bool
		wantStderr bool
	}{
		{name: "stderr only", wantStderr: true},
		{name: "file only", logFile: true, wantFile: true},
		{name: "file and stderr", logFile: true, alsoStderr: true, wantFile: true, wantStderr: true},
		{name: "alsologtostderr without file", alsoStderr: true, wantStderr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			conf := config.Default()
			conf.LogFormat = "json"
			conf.AlsoLogToStderr = test.alsoStderr
			var file, stderr bytes.Buffer
			var target log.Emitter
			if test.logFile {
				target = newTarget(conf, &file, &stderr)
			} else {
				target = newTarget(conf, nil, &stderr)
			}
			target.Emit(0, log.Info, time.Now(), "frame %d evicted", 3)

			if got := strings.Contains(file.String(), "frame 3 evicted"); got != test.wantFile {
				t.Errorf("log file got %q, want message: %t", file.String(), test.wantFile)
			}
			if got := strings.Contains(stderr.String(), "frame 3 evicted"); got != test.wantStderr {
				t.Errorf("stderr got %q, want message: %t", stderr.String(), test.wantStderr)
			}
		})
	}
}
