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

// Package config provides basic infrastructure to set configuration settings
// for vmsim. Each setting can be set from a TOML file and overridden from the
// command line.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"

	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/pkg/sentry/mm"
	"gvisor.dev/vmcore/pkg/sentry/swap"
)

// Config holds configuration that is not part of a workload.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name and a toml tag with the key name.
//  3. Register a new flag in flags.go, with same name and add a description.
//  4. Add any necessary validation into validate().
type Config struct {
	// Frames is the number of physical page frames.
	Frames int `flag:"frames" toml:"frames"`

	// SwapSectors is the capacity of the swap device in sectors.
	SwapSectors uint64 `flag:"swap-sectors" toml:"swap_sectors"`

	// SwapFile is the path of a host swap image. If empty, swap is kept in
	// memory.
	SwapFile string `flag:"swap-file" toml:"swap_file"`

	// SwapLockTimeout bounds how long to wait for another process to
	// release the swap image.
	SwapLockTimeout time.Duration `flag:"swap-lock-timeout" toml:"swap_lock_timeout"`

	// StackTop is the top of every user stack.
	StackTop Addr `flag:"stack-top" toml:"stack_top"`

	// MaxStack is the largest size a user stack may grow to, in bytes.
	MaxStack uint64 `flag:"max-stack" toml:"max_stack"`

	// KernelBase is the lowest kernel virtual address.
	KernelBase Addr `flag:"kernel-base" toml:"kernel_base"`

	// LogFilename is the filename to log to, if not empty. %COMMAND% and
	// %PID% are expanded.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format: text, json or logrus.
	LogFormat string `flag:"log-format" toml:"log_format"`

	// AlsoLogToStderr sends log messages to stderr as well when LogFilename
	// is set.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// Metrics indicates that metrics are printed in the Prometheus text
	// format when a command finishes.
	Metrics bool `flag:"metrics" toml:"metrics"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	l := mm.DefaultLayout()
	return &Config{
		Frames:      64,
		SwapSectors: 256 * swap.SectorsPerSlot,
		StackTop:    Addr(l.StackTop),
		MaxStack:    l.MaxStack,
		KernelBase:  Addr(l.KernelBase),
		LogFormat:   "text",
	}
}

// Load reads a TOML configuration file. Keys that are absent keep their
// default values.
func Load(path string) (*Config, error) {
	conf := Default()
	md, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("loading config %q: unknown keys %v", path, undecoded)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	if c.Frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	}
	if c.SwapSectors < swap.SectorsPerSlot {
		return fmt.Errorf("swap-sectors must hold at least one page (%d sectors), got %d", swap.SectorsPerSlot, c.SwapSectors)
	}
	if c.SwapLockTimeout < 0 {
		return fmt.Errorf("swap-lock-timeout must not be negative, got %v", c.SwapLockTimeout)
	}
	switch c.LogFormat {
	case "text", "json", "logrus":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", c.LogFormat)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid address space layout: %w", err)
	}
	return nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	return c.validate()
}

// Layout returns the address space layout described by c.
func (c *Config) Layout() mm.Layout {
	return mm.Layout{
		MinUserAddr: hostarch.PageSize,
		KernelBase:  hostarch.Addr(c.KernelBase),
		StackTop:    hostarch.Addr(c.StackTop),
		MaxStack:    c.MaxStack,
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	return deepcopy.Copy(c).(*Config)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}
