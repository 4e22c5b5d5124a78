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

package kernel

import (
	"errors"
	"fmt"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/mm"
	"gvisor.dev/vmcore/pkg/sentry/platform"
	"gvisor.dev/vmcore/pkg/sentry/platform/softmmu"
	"gvisor.dev/vmcore/pkg/sync"
)

// ExitStatus is the status of an exited task.
type ExitStatus struct {
	// Code is the exit code. Tasks killed by the kernel exit with -1.
	Code int

	// Killed is true if the task was killed by the kernel.
	Killed bool
}

// ErrKilled is returned by operations of a task that has been killed or has
// exited.
var ErrKilled = errors.New("task exited")

// FaultError is returned when an access to user memory faults and the fault
// cannot be resolved. Err is the reason the fault handler gave.
type FaultError struct {
	Addr hostarch.Addr
	Err  error
}

// Error implements error.Error.
func (e *FaultError) Error() string {
	return fmt.Sprintf("access to %v: %v", e.Addr, e.Err)
}

// Unwrap returns the fault handler's error.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// Task is a single-threaded process.
//
// Task methods other than ID, Exited, ExitStatus and Wait must only be
// called by the goroutine driving the task.
type Task struct {
	k      *Kernel
	tid    ThreadID
	parent *Task
	pt     *softmmu.PageTable
	mm     *mm.MemoryManager
	fds    *FDTable

	// sp is the current stack pointer. While the task is in a system call
	// it points into the kernel stack, and savedSP holds the user stack
	// pointer captured at entry.
	sp        hostarch.Addr
	savedSP   hostarch.Addr
	inSyscall bool

	// exitOnce guards the exit path; exited is closed once status is set.
	exitOnce sync.Once
	exited   chan struct{}
	status   ExitStatus

	// mu protects children.
	mu       sync.Mutex
	children map[ThreadID]*Task
}

// ID returns the task's ID.
func (t *Task) ID() ThreadID {
	return t.tid
}

// MemoryManager returns the task's address space.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.mm
}

// PageTable returns the task's page table.
func (t *Task) PageTable() *softmmu.PageTable {
	return t.pt
}

// FDTable returns the task's descriptor table.
func (t *Task) FDTable() *FDTable {
	return t.fds
}

// SP returns the user stack pointer.
func (t *Task) SP() hostarch.Addr {
	if t.inSyscall {
		return t.savedSP
	}
	return t.sp
}

// SetSP sets the user stack pointer.
func (t *Task) SetSP(sp hostarch.Addr) {
	t.sp = sp
}

// Exited returns a channel that is closed when the task exits.
func (t *Task) Exited() <-chan struct{} {
	return t.exited
}

// ExitStatus returns the exit status of the task.
//
// Preconditions: Exited is closed.
func (t *Task) ExitStatus() ExitStatus {
	<-t.exited
	return t.status
}

func (t *Task) dead() bool {
	select {
	case <-t.exited:
		return true
	default:
		return false
	}
}

// access performs one access to user memory within a page, resolving page
// faults. user is true for accesses made by user code rather than by the
// kernel on its behalf.
func (t *Task) access(ctx context.Context, va hostarch.Addr, at hostarch.AccessType, user bool, fn func(b []byte)) error {
	for {
		err := t.pt.Access(va, at, fn)
		var f *platform.Fault
		if !errors.As(err, &f) {
			return err
		}
		f.User = user
		if err := t.mm.HandleUserFault(ctx, *f, t.SP()); err != nil {
			return err
		}
	}
}

// copy moves len(b) bytes between b and user memory at va, splitting the
// range at page boundaries.
func (t *Task) copy(ctx context.Context, va hostarch.Addr, b []byte, at hostarch.AccessType, user bool) error {
	if _, ok := va.AddLength(uint64(len(b))); !ok {
		return &FaultError{Addr: va, Err: linuxerr.EFAULT}
	}
	for done := 0; done < len(b); {
		addr := va + hostarch.Addr(done)
		n := 0
		err := t.access(ctx, addr, at, user, func(page []byte) {
			if at.Write {
				n = copy(page, b[done:])
			} else {
				n = copy(b[done:], page)
			}
		})
		if err != nil {
			return &FaultError{Addr: addr, Err: err}
		}
		done += n
	}
	return nil
}

// Load reads len(dst) bytes of user memory at va as user code. A fault
// that cannot be resolved kills the task.
func (t *Task) Load(ctx context.Context, va hostarch.Addr, dst []byte) error {
	if t.dead() {
		return ErrKilled
	}
	if err := t.copy(ctx, va, dst, hostarch.Read, true); err != nil {
		t.kill(ctx, err)
		return err
	}
	return nil
}

// Store writes src to user memory at va as user code. A fault that cannot
// be resolved kills the task.
func (t *Task) Store(ctx context.Context, va hostarch.Addr, src []byte) error {
	if t.dead() {
		return ErrKilled
	}
	if err := t.copy(ctx, va, src, hostarch.Write, true); err != nil {
		t.kill(ctx, err)
		return err
	}
	return nil
}

// CopyIn reads user memory on behalf of a system call. Unresolvable faults
// are returned as a *FaultError.
//
// Preconditions: The task is in a system call.
func (t *Task) CopyIn(ctx context.Context, va hostarch.Addr, dst []byte) error {
	return t.copy(ctx, va, dst, hostarch.Read, false)
}

// CopyOut writes user memory on behalf of a system call. Unresolvable
// faults are returned as a *FaultError.
//
// Preconditions: The task is in a system call.
func (t *Task) CopyOut(ctx context.Context, va hostarch.Addr, src []byte) error {
	return t.copy(ctx, va, src, hostarch.Write, false)
}

// kernelStack is the stack pointer while a task runs in the kernel.
func (t *Task) kernelStack() hostarch.Addr {
	return t.k.layout.KernelBase + hostarch.PageSize
}

// enterSyscall records the user stack pointer and switches to the kernel
// stack. It returns ErrKilled if the task has exited.
func (t *Task) enterSyscall() error {
	if t.dead() {
		return ErrKilled
	}
	t.savedSP = t.sp
	t.sp = t.kernelStack()
	t.inSyscall = true
	return nil
}

func (t *Task) exitSyscall() {
	if !t.inSyscall {
		return
	}
	t.sp = t.savedSP
	t.inSyscall = false
}

// kill terminates the task after an unrecoverable fault.
func (t *Task) kill(ctx context.Context, err error) {
	processesKilled.Increment()
	t.k.killLog.Warningf("Killing task %d: %v", t.tid, err)
	t.exit(ctx, ExitStatus{Code: -1, Killed: true})
}

// exit tears down the task's address space and descriptors and publishes
// its status. Only the first call has any effect.
func (t *Task) exit(ctx context.Context, status ExitStatus) {
	t.exitOnce.Do(func() {
		if err := t.mm.Destroy(ctx); err != nil {
			ctx.Warningf("Task %d: tearing down address space: %v", t.tid, err)
		}
		t.fds.RemoveAll()
		t.status = status
		t.k.unregister(t)
		close(t.exited)
		ctx.Debugf("Task %d exited with status %+v", t.tid, status)
	})
}
