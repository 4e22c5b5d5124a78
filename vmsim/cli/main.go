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

// Package cli is the main entrypoint for vmsim.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/pkg/metric"
	"gvisor.dev/vmcore/vmsim/cmd"
	"gvisor.dev/vmcore/vmsim/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)

	var logFile io.Writer
	if conf.LogFilename != "" {
		f, err := log.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.PatternOpts{Command: subcommand})
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logFile = f
	}
	log.SetTarget(newTarget(conf, logFile, os.Stderr))
	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	const delimString = `**************** vmsim ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)

	if conf.Metrics {
		if err := metric.WritePrometheus(os.Stdout, ""); err != nil {
			log.Warningf("Writing metrics: %v", err)
		}
	}
	log.Infof("Exiting with status: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by vmsim.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	cb(new(cmd.Run), "")
	cb(new(cmd.Stress), "")

	const debugGroup = "debug"
	cb(new(cmd.SwapInfo), debugGroup)
}

// newTarget returns the emitter for log messages. Messages go to logFile if
// it is set and to stderr otherwise, or to both with --alsologtostderr.
func newTarget(conf *config.Config, logFile, stderr io.Writer) log.Emitter {
	var emitters log.MultiEmitter
	if logFile != nil {
		emitters = append(emitters, newEmitter(conf, logFile))
	}
	if logFile == nil || conf.AlsoLogToStderr {
		emitters = append(emitters, newEmitter(conf, stderr))
	}
	if len(emitters) == 1 {
		return emitters[0]
	}
	return &emitters
}

func newEmitter(conf *config.Config, logFile io.Writer) log.Emitter {
	switch conf.LogFormat {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	case "logrus":
		l := logrus.New()
		l.SetOutput(logFile)
		l.SetLevel(logrus.DebugLevel)
		return log.LogrusEmitter{Logger: l}
	}
	cmd.Fatalf("invalid log format %q, must be 'text', 'json', or 'logrus'", conf.LogFormat)
	panic("unreachable")
}
