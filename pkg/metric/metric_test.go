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

package metric

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/common/expfmt"
)

func TestRegistration(t *testing.T) {
	if _, err := NewUint64Metric("/test/registration", "desc"); err != nil {
		t.Fatalf("NewUint64Metric failed: %v", err)
	}
	if _, err := NewUint64Metric("/test/registration", "desc"); !errors.Is(err, ErrNameInUse) {
		t.Errorf("duplicate registration got err %v want %v", err, ErrNameInUse)
	}
	for _, name := range []string{"", "noslash", "/Upper", "/has space"} {
		if _, err := NewUint64Metric(name, ""); !errors.Is(err, ErrInvalidName) {
			t.Errorf("NewUint64Metric(%q) got err %v want %v", name, err, ErrInvalidName)
		}
	}
}

func TestCounterAndGauge(t *testing.T) {
	c := MustCreateNewUint64Metric("/test/counter", "a counter")
	g := MustCreateNewUint64Gauge("/test/gauge", "a gauge")
	c.Increment()
	c.IncrementBy(4)
	g.Set(10)
	g.Decrement()
	if got := c.Value(); got != 5 {
		t.Errorf("counter got %d want 5", got)
	}
	if got := g.Value(); got != 9 {
		t.Errorf("gauge got %d want 9", got)
	}
	if got := Snapshot()["/test/counter"]; got != 5 {
		t.Errorf("Snapshot counter got %d want 5", got)
	}
}

func TestWritePrometheus(t *testing.T) {
	c := MustCreateNewUint64Metric("/test/export/evictions", "frames evicted\nper run")
	c.IncrementBy(3)
	g := MustCreateNewUint64Gauge("/test/export/frames", "frames in use")
	g.Set(7)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf, "vmsim_"); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("TextToMetricFamilies failed: %v\n%s", err, buf.String())
	}

	ev, ok := parsed["vmsim_test_export_evictions"]
	if !ok {
		t.Fatalf("evictions metric missing from %v", parsed)
	}
	if got := ev.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("evictions got %v want 3", got)
	}
	if got, want := ev.GetHelp(), "frames evicted\nper run"; got != want {
		t.Errorf("help got %q want %q", got, want)
	}
	fr, ok := parsed["vmsim_test_export_frames"]
	if !ok {
		t.Fatalf("frames metric missing from %v", parsed)
	}
	if got := fr.GetMetric()[0].GetGauge().GetValue(); got != 7 {
		t.Errorf("frames got %v want 7", got)
	}
}
