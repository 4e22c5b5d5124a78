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
	"io"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/mm"
)

// syscall runs fn as a system call of t. A memory fault inside fn that
// cannot be resolved kills the task, whatever the reason the fault handler
// gave. Other errors are returned to the caller.
func (t *Task) syscall(ctx context.Context, fn func() error) error {
	if err := t.enterSyscall(); err != nil {
		return err
	}
	err := fn()
	t.exitSyscall()
	var fault *FaultError
	if errors.As(err, &fault) {
		t.kill(ctx, err)
	}
	return err
}

// Open opens the kernel file called name and returns its descriptor.
func (t *Task) Open(ctx context.Context, name string) (int32, error) {
	var fd int32
	err := t.syscall(ctx, func() error {
		f, err := t.k.lookup(name)
		if err != nil {
			return err
		}
		fd = t.fds.NewFD(f)
		return nil
	})
	return fd, err
}

// Close closes fd.
func (t *Task) Close(ctx context.Context, fd int32) error {
	return t.syscall(ctx, func() error {
		return t.fds.Remove(fd)
	})
}

// MMap maps length bytes of the file open at fd, starting at offset, to
// addr. The standard streams cannot be mapped.
func (t *Task) MMap(ctx context.Context, addr hostarch.Addr, length uint64, writable bool, fd int32, offset int64) (hostarch.Addr, error) {
	var start hostarch.Addr
	err := t.syscall(ctx, func() error {
		if fd == Stdin || fd == Stdout {
			return fmt.Errorf("mapping standard stream %d: %w", fd, linuxerr.EBADF)
		}
		d, err := t.fds.Get(fd)
		if err != nil {
			return err
		}
		start, err = t.mm.MMap(ctx, mm.MMapOpts{
			Addr:     addr,
			Length:   length,
			Writable: writable,
			File:     d.file,
			Offset:   offset,
		})
		return err
	})
	return start, err
}

// MUnmap removes the mapping starting at addr.
func (t *Task) MUnmap(ctx context.Context, addr hostarch.Addr) error {
	return t.syscall(ctx, func() error {
		return t.mm.MUnmap(ctx, addr)
	})
}

// Read reads up to n bytes from fd into user memory at addr and returns the
// number of bytes read. Reading the standard input returns end of file.
func (t *Task) Read(ctx context.Context, fd int32, addr hostarch.Addr, n int) (int, error) {
	var read int
	err := t.syscall(ctx, func() error {
		if fd == Stdin {
			return nil
		}
		if fd == Stdout {
			return linuxerr.EBADF
		}
		d, err := t.fds.Get(fd)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		d.mu.Lock()
		got, err := d.file.ReadAt(buf, d.offset)
		if err != nil && err != io.EOF {
			d.mu.Unlock()
			return err
		}
		d.offset += int64(got)
		d.mu.Unlock()
		if err := t.CopyOut(ctx, addr, buf[:got]); err != nil {
			return err
		}
		read = got
		return nil
	})
	return read, err
}

// Write writes n bytes of user memory at addr to fd and returns the number
// of bytes written.
func (t *Task) Write(ctx context.Context, fd int32, addr hostarch.Addr, n int) (int, error) {
	var written int
	err := t.syscall(ctx, func() error {
		if fd == Stdin {
			return linuxerr.EBADF
		}
		buf := make([]byte, n)
		if err := t.CopyIn(ctx, addr, buf); err != nil {
			return err
		}
		if fd == Stdout {
			var err error
			written, err = t.k.writeStdout(buf)
			return err
		}
		d, err := t.fds.Get(fd)
		if err != nil {
			return err
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		written, err = d.file.WriteAt(buf, d.offset)
		d.offset += int64(written)
		return err
	})
	return written, err
}

// Fork creates a child task with a copy of t's address space and
// descriptors.
func (t *Task) Fork(ctx context.Context) (*Task, error) {
	var child *Task
	err := t.syscall(ctx, func() error {
		c := t.k.newTask(t)
		cmm, err := t.mm.Fork(ctx, c.pt)
		if err != nil {
			return err
		}
		c.mm = cmm
		fds, err := t.fds.Fork()
		if err != nil {
			if derr := cmm.Destroy(ctx); derr != nil {
				ctx.Warningf("Failed to destroy address space of failed fork: %v", derr)
			}
			return err
		}
		c.fds = fds
		c.sp = t.savedSP
		t.mu.Lock()
		t.children[c.tid] = c
		t.mu.Unlock()
		t.k.register(c)
		child = c
		ctx.Debugf("Task %d forked task %d", t.tid, c.tid)
		return nil
	})
	return child, err
}

// Exit terminates the task with the given code.
func (t *Task) Exit(ctx context.Context, code int) {
	t.exit(ctx, ExitStatus{Code: code})
}

// Wait waits for the child tid to exit and returns its status. A child can
// be waited for only once.
func (t *Task) Wait(ctx context.Context, tid ThreadID) (ExitStatus, error) {
	t.mu.Lock()
	c, ok := t.children[tid]
	delete(t.children, tid)
	t.mu.Unlock()
	if !ok {
		return ExitStatus{}, fmt.Errorf("task %d: %w", tid, linuxerr.ECHILD)
	}
	select {
	case <-c.exited:
		return c.status, nil
	case <-ctx.Done():
		t.mu.Lock()
		t.children[tid] = c
		t.mu.Unlock()
		return ExitStatus{}, errors.Join(ctx.Err(), linuxerr.ECHILD)
	}
}
