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

// Package workload describes simulated processes and runs them against a
// kernel.
//
// A workload is a TOML document with a list of files and a list of
// processes:
//
//	[[file]]
//	name = "data"
//	content = "hello"
//
//	[[process]]
//	name = "main"
//	steps = [
//	  { op = "mmap", addr = 0x20000, length = 5, file = "data", writable = true },
//	  { op = "expect", addr = 0x20000, data = "hello" },
//	  { op = "exit", code = 0 },
//	]
//
// Every process not marked as forked starts as a separate task. Processes
// marked as forked only run as the child of a fork step.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/sync/errgroup"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sentry/kernel"
	"gvisor.dev/vmcore/pkg/sentry/mm"
	"gvisor.dev/vmcore/pkg/sync"
)

// Ops understood by Step.
const (
	OpAlloc  = "alloc"
	OpWrite  = "write"
	OpRead   = "read"
	OpExpect = "expect"
	OpPrint  = "print"
	OpMMap   = "mmap"
	OpMUnmap = "munmap"
	OpSP     = "sp"
	OpFork   = "fork"
	OpExit   = "exit"
)

// File is a file made available to every process.
type File struct {
	// Name is the name processes open the file by.
	Name string `toml:"name"`

	// Content is the initial content of an in-memory file.
	Content string `toml:"content"`

	// Size pads Content with zeroes up to Size bytes.
	Size int64 `toml:"size"`

	// Path names a host file to use instead of an in-memory one.
	Path string `toml:"path"`
}

// Step is a single action of a process.
type Step struct {
	Op       string `toml:"op"`
	Addr     uint64 `toml:"addr"`
	Data     string `toml:"data"`
	Length   uint64 `toml:"length"`
	File     string `toml:"file"`
	Offset   int64  `toml:"offset"`
	Writable bool   `toml:"writable"`
	Code     int    `toml:"code"`

	// Child names the process a fork step runs in the child.
	Child string `toml:"child"`
}

// Process is a named sequence of steps.
type Process struct {
	Name   string `toml:"name"`
	Forked bool   `toml:"forked"`
	Steps  []Step `toml:"steps"`
}

// Workload is a set of files and processes.
type Workload struct {
	Files     []File    `toml:"file"`
	Processes []Process `toml:"process"`
}

// Load reads a workload from a TOML file.
func Load(path string) (*Workload, error) {
	var w Workload
	if _, err := toml.DecodeFile(path, &w); err != nil {
		return nil, fmt.Errorf("loading workload %q: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("workload %q: %w", path, err)
	}
	return &w, nil
}

// Decode parses a workload from TOML text.
func Decode(data string) (*Workload, error) {
	var w Workload
	if _, err := toml.Decode(data, &w); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks that every step is well formed and that fork steps name
// existing processes.
func (w *Workload) Validate() error {
	names := make(map[string]bool)
	for _, p := range w.Processes {
		if p.Name == "" {
			return errors.New("process without a name")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate process %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range w.Processes {
		for i, s := range p.Steps {
			switch s.Op {
			case OpAlloc, OpWrite, OpRead, OpExpect, OpPrint, OpMUnmap, OpSP, OpExit:
			case OpMMap:
				if s.File == "" {
					return fmt.Errorf("process %q step %d: mmap without a file", p.Name, i)
				}
			case OpFork:
				if !names[s.Child] {
					return fmt.Errorf("process %q step %d: fork of unknown process %q", p.Name, i, s.Child)
				}
			default:
				return fmt.Errorf("process %q step %d: unknown op %q", p.Name, i, s.Op)
			}
		}
	}
	return nil
}

// Result is the outcome of one task.
type Result struct {
	Process string
	TID     kernel.ThreadID
	Status  kernel.ExitStatus

	// Err is the first failed step, if any.
	Err error
}

// Run installs w's files in k and runs w's processes concurrently until
// every task, including forked children, has exited. Results are returned
// in the order tasks were created.
func Run(ctx context.Context, k *kernel.Kernel, w *Workload) ([]Result, error) {
	for _, f := range w.Files {
		file, err := openFile(f)
		if err != nil {
			return nil, err
		}
		k.AddFile(f.Name, file)
	}

	r := &runner{
		k:     k,
		procs: make(map[string]*Process),
	}
	for i := range w.Processes {
		r.procs[w.Processes[i].Name] = &w.Processes[i]
	}

	var g errgroup.Group
	r.g = &g
	for i := range w.Processes {
		p := &w.Processes[i]
		if p.Forked {
			continue
		}
		t, err := k.NewTask(ctx)
		if err != nil {
			return nil, fmt.Errorf("starting process %q: %w", p.Name, err)
		}
		r.start(ctx, p, t)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r.results, nil
}

func openFile(f File) (fsbridge.File, error) {
	if f.Path != "" {
		hf, err := fsbridge.OpenHostFile(f.Path, os.O_RDWR)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Name, err)
		}
		return hf, nil
	}
	data := []byte(f.Content)
	if int64(len(data)) < f.Size {
		data = append(data, make([]byte, f.Size-int64(len(data)))...)
	}
	return fsbridge.NewMemFile(f.Name, data), nil
}

type runner struct {
	k     *kernel.Kernel
	procs map[string]*Process
	g     *errgroup.Group

	// mu protects results.
	mu      sync.Mutex
	results []Result
}

// start runs p on t in a new goroutine and records its result.
func (r *runner) start(ctx context.Context, p *Process, t *kernel.Task) {
	r.mu.Lock()
	idx := len(r.results)
	r.results = append(r.results, Result{Process: p.Name, TID: t.ID()})
	r.mu.Unlock()

	r.g.Go(func() error {
		stepErr := r.runSteps(ctx, p, t)
		if stepErr != nil {
			ctx.Infof("Process %q (task %d): %v", p.Name, t.ID(), stepErr)
			// A failed expectation exits the task; a fault has already
			// killed it.
			t.Exit(ctx, 1)
		} else {
			t.Exit(ctx, 0)
		}
		status := t.ExitStatus()
		r.mu.Lock()
		r.results[idx].Status = status
		r.results[idx].Err = stepErr
		r.mu.Unlock()
		return nil
	})
}

// runSteps executes p's steps on t. It returns nil when the process runs
// off its last step or exits.
func (r *runner) runSteps(ctx context.Context, p *Process, t *kernel.Task) error {
	var children []kernel.ThreadID
	defer func() {
		r.reap(ctx, t, children)
	}()

	for i, s := range p.Steps {
		err := r.step(ctx, t, s, &children)
		if errors.Is(err, errExit) {
			r.reap(ctx, t, children)
			children = nil
			t.Exit(ctx, s.Code)
			return nil
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, s.Op, err)
		}
	}
	return nil
}

// reap waits for every child in tids. Results are recorded by the child's
// own runner, so only failures to wait are reported.
func (r *runner) reap(ctx context.Context, t *kernel.Task, tids []kernel.ThreadID) {
	for _, tid := range tids {
		if _, err := t.Wait(ctx, tid); err != nil {
			ctx.Warningf("Task %d: waiting for child %d: %v", t.ID(), tid, err)
		}
	}
}

var errExit = errors.New("exit")

func (r *runner) step(ctx context.Context, t *kernel.Task, s Step, children *[]kernel.ThreadID) error {
	switch s.Op {
	case OpAlloc:
		pages := max(hostarch.PagesIn(s.Length), 1)
		for i := uint64(0); i < pages; i++ {
			va := hostarch.Addr(s.Addr + i*hostarch.PageSize)
			if err := t.MemoryManager().AllocPage(ctx, mm.Anon, va, s.Writable); err != nil {
				return err
			}
		}
		return nil

	case OpWrite:
		return t.Store(ctx, r.addr(t, s), []byte(s.Data))

	case OpRead:
		buf := make([]byte, s.Length)
		if err := t.Load(ctx, r.addr(t, s), buf); err != nil {
			return err
		}
		ctx.Infof("Task %d read %q at %v", t.ID(), buf, r.addr(t, s))
		return nil

	case OpExpect:
		buf := make([]byte, len(s.Data))
		if err := t.Load(ctx, r.addr(t, s), buf); err != nil {
			return err
		}
		if !bytes.Equal(buf, []byte(s.Data)) {
			return fmt.Errorf("at %v: got %q want %q", r.addr(t, s), buf, s.Data)
		}
		return nil

	case OpPrint:
		n := s.Length
		if n == 0 {
			n = uint64(len(s.Data))
		}
		_, err := t.Write(ctx, kernel.Stdout, r.addr(t, s), int(n))
		return err

	case OpMMap:
		fd, err := t.Open(ctx, s.File)
		if err != nil {
			return err
		}
		defer t.Close(ctx, fd)
		_, err = t.MMap(ctx, hostarch.Addr(s.Addr), s.Length, s.Writable, fd, s.Offset)
		return err

	case OpMUnmap:
		return t.MUnmap(ctx, hostarch.Addr(s.Addr))

	case OpSP:
		t.SetSP(hostarch.Addr(s.Addr))
		return nil

	case OpFork:
		c, err := t.Fork(ctx)
		if err != nil {
			return err
		}
		*children = append(*children, c.ID())
		r.start(ctx, r.procs[s.Child], c)
		return nil

	case OpExit:
		return errExit
	}
	return fmt.Errorf("unknown op %q", s.Op)
}

// addr returns the address a step accesses. A zero address means just below
// the stack pointer.
func (r *runner) addr(t *kernel.Task, s Step) hostarch.Addr {
	if s.Addr != 0 {
		return hostarch.Addr(s.Addr)
	}
	n := s.Length
	if n == 0 {
		n = uint64(len(s.Data))
	}
	return t.SP() - hostarch.Addr(n)
}
