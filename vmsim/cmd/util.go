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

// Package cmd holds implementations of the vmsim commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
	"gvisor.dev/vmcore/pkg/sentry/kernel"
	"gvisor.dev/vmcore/vmsim/config"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the user of vmsim and are in addition to the debug log.
var ErrorLogger io.Writer = os.Stderr

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(ErrorLogger, "vmsim: "+format+"\n", args...)
	os.Exit(128)
}

// openSwap opens the swap device described by conf: a locked host image if
// a swap file is configured, memory otherwise.
func openSwap(ctx context.Context, conf *config.Config) (disk.Device, func(), error) {
	if conf.SwapFile == "" {
		return disk.NewMemDisk(conf.SwapSectors), func() {}, nil
	}
	d, err := disk.OpenFileDisk(ctx, conf.SwapFile, disk.FileDiskOpts{
		Sectors:     conf.SwapSectors,
		LockTimeout: conf.SwapLockTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return d, func() {
		if err := d.Close(); err != nil {
			log.Warningf("Closing swap image %q: %v", conf.SwapFile, err)
		}
	}, nil
}

// newKernel builds a kernel from conf. The returned function releases it.
func newKernel(ctx context.Context, conf *config.Config, stdout io.Writer) (*kernel.Kernel, func(), error) {
	dev, closeSwap, err := openSwap(ctx, conf)
	if err != nil {
		return nil, nil, fmt.Errorf("opening swap: %w", err)
	}
	k, err := kernel.New(kernel.InitKernelArgs{
		Frames:     conf.Frames,
		SwapDevice: dev,
		Layout:     conf.Layout(),
		Stdout:     stdout,
	})
	if err != nil {
		closeSwap()
		return nil, nil, err
	}
	return k, func() {
		if err := k.Close(); err != nil {
			log.Warningf("Closing kernel: %v", err)
		}
		closeSwap()
	}, nil
}
