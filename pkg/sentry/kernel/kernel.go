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

// Package kernel provides the process model on top of the memory manager:
// tasks with an address space, a stack pointer and a file descriptor table,
// and the system calls that operate on them.
//
// Each Task is driven by a single goroutine. Page faults are handled on
// that goroutine, and a fault that cannot be resolved kills only the
// faulting task.
package kernel

import (
	"fmt"
	"io"
	"time"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/log"
	"gvisor.dev/vmcore/pkg/metric"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sentry/mm"
	"gvisor.dev/vmcore/pkg/sentry/pgalloc"
	"gvisor.dev/vmcore/pkg/sentry/platform/softmmu"
	"gvisor.dev/vmcore/pkg/sentry/swap"
	"gvisor.dev/vmcore/pkg/sync"
)

var processesKilled = metric.MustCreateNewUint64Metric("/vm/processes_killed", "Number of tasks killed by an unrecoverable memory fault.")

// ThreadID is a task identifier.
type ThreadID int32

// InitKernelArgs holds arguments to New.
type InitKernelArgs struct {
	// Frames is the number of physical page frames.
	Frames int

	// SwapDevice backs the swap store.
	SwapDevice disk.Device

	// Layout is the address space layout of every task.
	Layout mm.Layout

	// Stdout receives writes to descriptor 1. If nil, they are discarded.
	Stdout io.Writer

	// KillLogInterval is the minimum interval between logged task kills.
	// Kills in between are counted and summarized. Zero means one second.
	KillLogInterval time.Duration
}

// Kernel owns the resources shared by every task.
type Kernel struct {
	// The fields below are immutable.
	pool    *pgalloc.Pool
	swap    *swap.Store
	frames  *mm.FrameTable
	layout  mm.Layout
	killLog log.Logger

	// stdoutMu serializes writes to stdout.
	stdoutMu sync.Mutex
	stdout   io.Writer

	// mu protects the fields below.
	mu      sync.Mutex
	files   map[string]fsbridge.File
	tasks   map[ThreadID]*Task
	nextTID ThreadID
}

// New returns a Kernel.
func New(args InitKernelArgs) (*Kernel, error) {
	if err := args.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	if args.SwapDevice == nil {
		return nil, fmt.Errorf("no swap device: %w", linuxerr.EINVAL)
	}
	pool, err := pgalloc.NewPool(args.Frames)
	if err != nil {
		return nil, err
	}
	store := swap.New(args.SwapDevice)
	stdout := args.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	interval := args.KillLogInterval
	if interval == 0 {
		interval = time.Second
	}
	log.Infof("Kernel: %d frames, %d swap slots, stack top %v", pool.Len(), store.Slots(), args.Layout.StackTop)
	return &Kernel{
		pool:    pool,
		swap:    store,
		frames:  mm.NewFrameTable(pool, store),
		layout:  args.Layout,
		killLog: log.BasicRateLimitedLogger(interval),
		stdout:  stdout,
		files:   make(map[string]fsbridge.File),
		tasks:   make(map[ThreadID]*Task),
		nextTID: 1,
	}, nil
}

// Pool returns the physical frame pool.
func (k *Kernel) Pool() *pgalloc.Pool {
	return k.pool
}

// Swap returns the swap store.
func (k *Kernel) Swap() *swap.Store {
	return k.swap
}

// FrameTable returns the frame table shared by every task.
func (k *Kernel) FrameTable() *mm.FrameTable {
	return k.frames
}

// AddFile makes f available to Open under name. The kernel owns f.
func (k *Kernel) AddFile(name string, f fsbridge.File) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if old, ok := k.files[name]; ok {
		old.Close()
	}
	k.files[name] = f
}

// lookup returns a new handle on the file called name.
func (k *Kernel) lookup(name string) (fsbridge.File, error) {
	k.mu.Lock()
	f, ok := k.files[name]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %q: %w", name, linuxerr.ENOENT)
	}
	return f.Reopen()
}

// NewTask creates a task with an empty address space and an allocated
// first stack page.
func (k *Kernel) NewTask(ctx context.Context) (*Task, error) {
	t := k.newTask(nil)
	sp, err := t.mm.SetupStack(ctx)
	if err != nil {
		if derr := t.mm.Destroy(ctx); derr != nil {
			ctx.Warningf("Failed to destroy address space of new task: %v", derr)
		}
		return nil, fmt.Errorf("setting up stack: %w", err)
	}
	t.sp = sp
	k.register(t)
	ctx.Debugf("Created task %d", t.tid)
	return t, nil
}

func (k *Kernel) newTask(parent *Task) *Task {
	pt := softmmu.New(k.pool, k.layout.KernelBase)
	k.mu.Lock()
	tid := k.nextTID
	k.nextTID++
	k.mu.Unlock()
	return &Task{
		k:        k,
		tid:      tid,
		parent:   parent,
		pt:       pt,
		mm:       mm.NewMemoryManager(k.frames, pt, k.layout),
		fds:      NewFDTable(),
		exited:   make(chan struct{}),
		children: make(map[ThreadID]*Task),
	}
}

func (k *Kernel) register(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tasks[t.tid] = t
}

func (k *Kernel) unregister(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.tasks, t.tid)
}

// Task returns the live task with the given ID, or nil.
func (k *Kernel) Task(tid ThreadID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasks[tid]
}

func (k *Kernel) writeStdout(b []byte) (int, error) {
	k.stdoutMu.Lock()
	defer k.stdoutMu.Unlock()
	return k.stdout.Write(b)
}

// Close releases the kernel's files and frame pool. Every task must have
// exited.
func (k *Kernel) Close() error {
	k.mu.Lock()
	for name, f := range k.files {
		f.Close()
		delete(k.files, name)
	}
	k.mu.Unlock()
	return k.pool.Close()
}
