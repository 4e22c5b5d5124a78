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

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	processes int
	pages     int
	rounds    int
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "stamp and verify more pages than there are frames"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - run concurrent tasks that stamp and verify anonymous pages.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.processes, "processes", 4, "number of concurrent tasks.")
	f.IntVar(&s.pages, "pages", 32, "number of pages each task stamps.")
	f.IntVar(&s.rounds, "rounds", 4, "number of verification passes.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	vctx := vmcontext.WithLogger(ctx, log.Log())
	k, release, err := newKernel(vctx, conf, os.Stdout)
	if err != nil {
		Fatalf("creating kernel: %v", err)
	}
	defer release()

	res, err := workload.Stress(vctx, k, workload.StressOpts{
		Processes: s.processes,
		Pages:     s.pages,
		Rounds:    s.rounds,
	})
	if err != nil {
		Fatalf("stress: %v", err)
	}
	fmt.Fprintf(os.Stdout, "tasks=%d pages=%d frames=%d evictions=%d mismatches=%d killed=%d\n",
		s.processes, s.pages, conf.Frames, res.Evictions, res.Mismatches, res.Killed)
	if res.Mismatches > 0 || res.Killed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
