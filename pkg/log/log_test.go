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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

// records returns the number of newline-terminated records written.
func (w *testWriter) records() int {
	return strings.Count(strings.Join(w.lines, ""), "\n")
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %v, expected: %v", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Errorf("line %d doesn't match, got: %q, expected: %q", i, l, expected[i])
		}
	}
}

func TestBasicLoggerLevels(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	l.Warningf("shown %d", 2)
	if got, want := tw.records(), 2; got != want {
		t.Fatalf("got %d records want %d: %v", got, want, tw.lines)
	}
	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) got false after SetLevel(Debug)")
	}
}

func TestMultiEmitter(t *testing.T) {
	first, second := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: first}, &Writer{Next: second}}
	l := &BasicLogger{Level: Info, Emitter: &m}
	l.Infof("slot %d freed", 5)
	for i, tw := range []*testWriter{first, second} {
		if got := strings.Join(tw.lines, ""); got != "slot 5 freed\n" {
			t.Errorf("emitter %d got %q want %q", i, got, "slot 5 freed\n")
		}
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	var buf bytes.Buffer
	e := GoogleEmitter{&Writer{Next: &buf}}
	ts := time.Date(2026, time.March, 4, 5, 6, 7, 8000, time.UTC)
	e.Emit(0, Warning, ts, "evicted %d frames", 3)
	line := buf.String()
	if !strings.HasPrefix(line, "W0304 05:06:07.000008 ") {
		t.Errorf("unexpected header in %q", line)
	}
	if !strings.Contains(line, "log_test.go:") {
		t.Errorf("caller missing from %q", line)
	}
	if !strings.HasSuffix(line, "] evicted 3 frames\n") {
		t.Errorf("unexpected message in %q", line)
	}
}

func TestJSONEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := JSONEmitter{&Writer{Next: &buf}}
	e.Emit(0, Info, time.Now(), "swap slot %d", 7)
	var got jsonLog
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal(%q) failed: %v", buf.String(), err)
	}
	if got.Msg != "swap slot 7" || got.Level != Info {
		t.Errorf("got %+v, want msg %q at level %v", got, "swap slot 7", Info)
	}
	if !strings.HasPrefix(got.Caller, "log_test.go:") {
		t.Errorf("got caller %q, want log_test.go:<line>", got.Caller)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Debug, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(l, time.Hour)
	for i := 0; i < 5; i++ {
		rl.Warningf("fault %d", i)
	}
	if got, want := tw.records(), 1; got != want {
		t.Fatalf("got %d records want %d: %v", got, want, tw.lines)
	}
	if got := rl.(*rateLimitedLogger).suppressed.Load(); got != 4 {
		t.Errorf("suppressed got %d want 4", got)
	}
}

func TestLogrusEmitter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	e := LogrusEmitter{Logger: l}
	e.Emit(0, Warning, time.Now(), "process %d killed", 42)
	out := buf.String()
	if !strings.Contains(out, "level=warning") || !strings.Contains(out, `msg="process 42 killed"`) {
		t.Errorf("unexpected logrus output %q", out)
	}
	if got := LogrusLevel(Debug); got != logrus.DebugLevel {
		t.Errorf("LogrusLevel(Debug) got %v want %v", got, logrus.DebugLevel)
	}
}

func TestOpenFilePattern(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(dir+"/sub/vmsim-%COMMAND%.log", os.O_CREATE|os.O_WRONLY, PatternOpts{Command: "stress"})
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if got, want := f.Name(), dir+"/sub/vmsim-stress.log"; got != want {
		t.Errorf("got file %q want %q", got, want)
	}
	if f, err := OpenFile("", os.O_RDONLY, PatternOpts{}); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") got (%v, %v) want (nil, nil)", f, err)
	}
}
