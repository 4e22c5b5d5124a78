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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/mm"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return testFlags
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmsim.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("config from default flags mismatch (-want +got):\n%s", diff)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if diff := cmp.Diff(mm.DefaultLayout(), c.Layout()); diff != "" {
		t.Errorf("Layout mismatch (-want +got):\n%s", diff)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t,
		"--frames=8",
		"--debug",
		"--stack-top=0x10000000",
		"--swap-lock-timeout=2s",
		"--log-format=json",
	))
	if err != nil {
		t.Fatal(err)
	}
	if want := 8; c.Frames != want {
		t.Errorf("Frames=%v, want: %v", c.Frames, want)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := Addr(0x10000000); c.StackTop != want {
		t.Errorf("StackTop=%v, want: %v", c.StackTop, want)
	}
	if want := 2 * time.Second; c.SwapLockTimeout != want {
		t.Errorf("SwapLockTimeout=%v, want: %v", c.SwapLockTimeout, want)
	}
	if want := "json"; c.LogFormat != want {
		t.Errorf("LogFormat=%v, want: %v", c.LogFormat, want)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	orig := Default()
	orig.Frames = 3
	orig.SwapFile = "/tmp/swap.img"
	orig.KernelBase = 0x100000000
	orig.AlsoLogToStderr = true
	orig.Metrics = true

	flags := orig.ToFlags()
	c, err := NewFromFlags(newFlagSet(t, flags...))
	if err != nil {
		t.Fatalf("NewFromFlags(%v): %v", flags, err)
	}
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Errorf("round trip through %v mismatch (-want +got):\n%s", flags, diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
frames = 4
swap_sectors = 64
swap_lock_timeout = "500ms"
stack_top = 0x20000000
max_stack = 65536
log_format = "logrus"
metrics = true
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Frames = 4
	want.SwapSectors = 64
	want.SwapLockTimeout = 500 * time.Millisecond
	want.StackTop = 0x20000000
	want.MaxStack = 65536
	want.LogFormat = "logrus"
	want.Metrics = true
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "frames = 4\ndebug = true\n")
	c, err := NewFromFlags(newFlagSet(t, "--config="+path, "--frames=9"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Frames != 9 {
		t.Errorf("Frames=%d, want: 9", c.Frames)
	}
	if !c.Debug {
		t.Errorf("Debug from file was lost")
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(c *Config)
		err    string
	}{
		{name: "no frames", modify: func(c *Config) { c.Frames = 0 }, err: "frames"},
		{name: "tiny swap", modify: func(c *Config) { c.SwapSectors = 1 }, err: "swap-sectors"},
		{name: "log format", modify: func(c *Config) { c.LogFormat = "xml" }, err: "log format"},
		{name: "lock timeout", modify: func(c *Config) { c.SwapLockTimeout = -time.Second }, err: "swap-lock-timeout"},
		{name: "stack above kernel", modify: func(c *Config) { c.StackTop = c.KernelBase + hostarch.PageSize }, err: "layout"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("Validate() got %v, want error containing %q", err, tc.err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "frames = 4\nframez = 5\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "framez") {
		t.Errorf("Load got %v, want unknown key error", err)
	}
}

func TestClone(t *testing.T) {
	orig := Default()
	orig.SwapFile = "/tmp/a"
	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Errorf("Clone mismatch (-want +got):\n%s", diff)
	}
	c.SwapFile = "/tmp/b"
	c.Frames++
	if orig.SwapFile != "/tmp/a" || orig.Frames != Default().Frames {
		t.Errorf("modifying clone changed original: %+v", orig)
	}
}
