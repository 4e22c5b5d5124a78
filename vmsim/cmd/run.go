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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	vmcontext "gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/vmsim/config"
	"gvisor.dev/vmcore/vmsim/workload"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// quiet suppresses the per-process summary.
	quiet bool
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run the processes of a workload file"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <workload.toml> - run a workload.

The workload lists files and processes. Processes run concurrently, each as
its own task, and a summary of their exit statuses is printed when all have
exited.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.quiet, "quiet", false, "do not print the exit status of each process.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	w, err := workload.Load(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	vctx := vmcontext.WithLogger(ctx, log.Log())
	k, release, err := newKernel(vctx, conf, os.Stdout)
	if err != nil {
		Fatalf("creating kernel: %v", err)
	}
	defer release()

	results, err := workload.Run(vctx, k, w)
	if err != nil {
		Fatalf("running workload: %v", err)
	}
	status := subcommands.ExitSuccess
	for _, res := range results {
		if res.Err != nil || res.Status.Killed {
			status = subcommands.ExitFailure
		}
		if r.quiet {
			continue
		}
		switch {
		case res.Status.Killed:
			fmt.Fprintf(os.Stderr, "%s (task %d): killed: %v\n", res.Process, res.TID, res.Err)
		case res.Err != nil:
			fmt.Fprintf(os.Stderr, "%s (task %d): exit %d: %v\n", res.Process, res.TID, res.Status.Code, res.Err)
		default:
			fmt.Fprintf(os.Stderr, "%s (task %d): exit %d\n", res.Process, res.TID, res.Status.Code)
		}
	}
	return status
}
