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
	"fmt"
	"reflect"
	"strconv"

	"gvisor.dev/vmcore/pkg/hostarch"
)

// configFlag names the flag holding the path of a TOML configuration file.
const configFlag = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	d := Default()

	flagSet.String(configFlag, "", "path of a TOML configuration file. Flags set on the command line override its values.")

	// Machine flags.
	flagSet.Int("frames", d.Frames, "number of physical page frames.")
	flagSet.Uint64("swap-sectors", d.SwapSectors, "capacity of the swap device in 512-byte sectors.")
	flagSet.String("swap-file", d.SwapFile, "path of the host swap image. If empty, swap is kept in memory.")
	flagSet.Duration("swap-lock-timeout", d.SwapLockTimeout, "how long to wait for another process to release the swap image. Zero fails at once.")

	// Address space flags.
	flagSet.Var(addrPtr(d.StackTop), "stack-top", "top of every user stack.")
	flagSet.Uint64("max-stack", d.MaxStack, "largest size of a user stack in bytes.")
	flagSet.Var(addrPtr(d.KernelBase), "kernel-base", "lowest kernel virtual address.")

	// Debugging flags.
	flagSet.String("log", d.LogFilename, "file path where internal debug information is written, default is stderr. %COMMAND% and %PID% are expanded.")
	flagSet.String("log-format", d.LogFormat, "log format: text (default), json, or logrus.")
	flagSet.Bool("alsologtostderr", d.AlsoLogToStderr, "send log messages to stderr as well as to the --log file.")
	flagSet.Bool("debug", d.Debug, "enable debug logging.")
	flagSet.Bool("metrics", d.Metrics, "print metrics in the Prometheus text format when the command finishes.")
}

// Addr is a virtual address setting. As a flag it accepts any base
// understood by strconv.ParseUint.
type Addr uint64

func addrPtr(v Addr) *Addr {
	return &v
}

// String implements flag.Value.
func (a *Addr) String() string {
	return hostarch.Addr(*a).String()
}

// Get implements flag.Getter.
func (a *Addr) Get() any {
	return *a
}

// Set implements flag.Value.
func (a *Addr) Set(v string) error {
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", v, err)
	}
	*a = Addr(n)
	return nil
}

// NewFromFlags creates a new Config with values coming from command line flags.
// If the config flag names a file, its values replace the defaults and flags
// set explicitly on the command line take precedence over both.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	fields := conf.flagFields()
	flagSet.VisitAll(func(fl *flag.Flag) {
		if f, ok := fields[fl.Name]; ok {
			setField(f, fl)
		}
	})

	if fl := flagSet.Lookup(configFlag); fl != nil && fl.Value.String() != "" {
		loaded, err := Load(fl.Value.String())
		if err != nil {
			return nil, err
		}
		conf = loaded
		fields = conf.flagFields()
		flagSet.Visit(func(fl *flag.Flag) {
			if f, ok := fields[fl.Name]; ok {
				setField(f, fl)
			}
		})
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// flagFields maps flag names to the settable fields of c.
func (c *Config) flagFields() map[string]reflect.Value {
	fields := make(map[string]reflect.Value)
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fields[name] = obj.Field(i)
	}
	return fields
}

func setField(field reflect.Value, fl *flag.Flag) {
	getter, ok := fl.Value.(flag.Getter)
	if !ok {
		panic(fmt.Sprintf("Flag %q cannot be read", fl.Name))
	}
	field.Set(reflect.ValueOf(getter.Get()).Convert(field.Type()))
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
