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

package workload

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/metric"
	"gvisor.dev/vmcore/pkg/sentry/kernel"
	"gvisor.dev/vmcore/pkg/sentry/mm"
	"gvisor.dev/vmcore/pkg/sync"
)

// StressOpts configures Stress.
type StressOpts struct {
	// Processes is the number of concurrent tasks.
	Processes int

	// Pages is the number of anonymous pages each task stamps.
	Pages int

	// Rounds is the number of verification passes over the pages.
	Rounds int

	// Base is the address of each task's first page.
	Base hostarch.Addr
}

// StressResult summarizes a Stress run.
type StressResult struct {
	// Evictions is the number of frames evicted during the run.
	Evictions uint64

	// Mismatches is the number of page reads that returned another page's
	// stamp.
	Mismatches int

	// Killed is the number of tasks killed by a fault.
	Killed int
}

// Stress runs opts.Processes tasks that each stamp opts.Pages pages with a
// value unique to the task and page, then read them back opts.Rounds times.
// With more pages than frames this drives eviction and swap under
// concurrency.
func Stress(ctx context.Context, k *kernel.Kernel, opts StressOpts) (StressResult, error) {
	if opts.Processes <= 0 || opts.Pages <= 0 {
		return StressResult{}, fmt.Errorf("stress needs processes and pages: %w", linuxerr.EINVAL)
	}
	if opts.Base == 0 {
		opts.Base = 0x10000
	}
	// Each task also holds its first stack page.
	if need, have := opts.Processes*(opts.Pages+1), k.Pool().Len()+k.Swap().Slots(); need > have {
		return StressResult{}, fmt.Errorf("%d pages do not fit in %d frames and %d swap slots: %w", need, k.Pool().Len(), k.Swap().Slots(), linuxerr.ENOSPC)
	}

	before := metric.Snapshot()[evictionsMetric]
	var (
		mu  sync.Mutex
		res StressResult
	)
	var g errgroup.Group
	for i := 0; i < opts.Processes; i++ {
		t, err := k.NewTask(ctx)
		if err != nil {
			g.Wait()
			return StressResult{}, err
		}
		g.Go(func() error {
			mismatches, err := stressTask(ctx, t, opts)
			mu.Lock()
			defer mu.Unlock()
			res.Mismatches += mismatches
			if err != nil {
				ctx.Warningf("Stress task %d: %v", t.ID(), err)
				res.Killed++
			}
			t.Exit(ctx, 0)
			return nil
		})
	}
	g.Wait()
	res.Evictions = metric.Snapshot()[evictionsMetric] - before
	return res, nil
}

const evictionsMetric = "/vm/evictions"

func stamp(tid kernel.ThreadID, page int) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b, uint64(tid))
	binary.LittleEndian.PutUint64(b[8:], uint64(page))
	return b
}

// stressTask stamps and verifies t's pages. It returns the number of
// mismatched reads and the error that killed the task, if any.
func stressTask(ctx context.Context, t *kernel.Task, opts StressOpts) (int, error) {
	for i := 0; i < opts.Pages; i++ {
		va := opts.Base + hostarch.Addr(i*hostarch.PageSize)
		if err := t.MemoryManager().AllocPage(ctx, mm.Anon, va, true); err != nil {
			return 0, err
		}
		// Stamp both ends of the page.
		if err := t.Store(ctx, va, stamp(t.ID(), i)); err != nil {
			return 0, err
		}
		if err := t.Store(ctx, va+hostarch.PageSize-16, stamp(t.ID(), i)); err != nil {
			return 0, err
		}
	}

	mismatches := 0
	got := make([]byte, 16)
	for r := 0; r < opts.Rounds; r++ {
		for i := 0; i < opts.Pages; i++ {
			va := opts.Base + hostarch.Addr(i*hostarch.PageSize)
			want := stamp(t.ID(), i)
			for _, off := range []hostarch.Addr{0, hostarch.PageSize - 16} {
				if err := t.Load(ctx, va+off, got); err != nil {
					return mismatches, err
				}
				if string(got) != string(want) {
					mismatches++
				}
			}
		}
	}
	return mismatches, nil
}
