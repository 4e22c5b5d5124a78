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
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
	"gvisor.dev/vmcore/pkg/sentry/swap"
	"gvisor.dev/vmcore/vmsim/config"
)

// SwapInfo implements subcommands.Command for the "swapinfo" command.
type SwapInfo struct{}

// Name implements subcommands.Command.Name.
func (*SwapInfo) Name() string {
	return "swapinfo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*SwapInfo) Synopsis() string {
	return "create or lock the swap image and print its geometry"
}

// Usage implements subcommands.Command.Usage.
func (*SwapInfo) Usage() string {
	return `swapinfo [flags] - open the image named by --swap-file and print its slot geometry.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*SwapInfo) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*SwapInfo) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if conf.SwapFile == "" {
		Fatalf("swapinfo requires --swap-file")
	}

	dev, release, err := openSwap(vmcontext.WithLogger(ctx, log.Log()), conf)
	if err != nil {
		Fatalf("opening swap image: %v", err)
	}
	defer release()
	store := swap.New(dev)

	fmt.Fprintf(os.Stdout, "image:            %s\n", conf.SwapFile)
	fmt.Fprintf(os.Stdout, "sectors:          %d\n", dev.Size())
	fmt.Fprintf(os.Stdout, "sector size:      %d\n", disk.SectorSize)
	fmt.Fprintf(os.Stdout, "sectors per slot: %d\n", swap.SectorsPerSlot)
	fmt.Fprintf(os.Stdout, "slots:            %d\n", store.Slots())
	fmt.Fprintf(os.Stdout, "capacity:         %d bytes\n", uint64(store.Slots())*hostarch.PageSize)
	return subcommands.ExitSuccess
}
