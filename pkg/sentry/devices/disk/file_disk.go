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

package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/log"
)

// ErrLocked is returned by OpenFileDisk when another process holds the image
// lock for longer than the lock timeout.
var ErrLocked = errors.New("disk image is locked by another process")

// FileDisk is a Device backed by a host image file. The image is locked
// exclusively for the lifetime of the FileDisk.
type FileDisk struct {
	file    *os.File
	lock    *flock.Flock
	sectors uint64
}

var _ Device = (*FileDisk)(nil)

// FileDiskOpts are options for OpenFileDisk.
type FileDiskOpts struct {
	// Sectors is the capacity of the device. The image is resized to
	// exactly Sectors*SectorSize bytes.
	Sectors uint64

	// LockTimeout bounds how long OpenFileDisk waits for the image lock.
	// Zero means a single attempt.
	LockTimeout time.Duration
}

// OpenFileDisk opens or creates the image at path.
func OpenFileDisk(ctx context.Context, path string, opts FileDiskOpts) (*FileDisk, error) {
	if opts.Sectors == 0 {
		return nil, fmt.Errorf("disk image %q: zero sectors: %w", path, linuxerr.EINVAL)
	}
	lock := flock.NewFlock(path + ".lock")
	if err := acquire(ctx, lock, opts.LockTimeout); err != nil {
		return nil, fmt.Errorf("locking disk image %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := f.Truncate(int64(opts.Sectors * SectorSize)); err != nil {
		f.Close()
		lock.Unlock()
		return nil, fmt.Errorf("resizing disk image %q: %w", path, err)
	}
	log.Debugf("Opened disk image %q with %d sectors", path, opts.Sectors)
	return &FileDisk{
		file:    f,
		lock:    lock,
		sectors: opts.Sectors,
	}, nil
}

// acquire takes lock, polling until timeout expires.
func acquire(ctx context.Context, lock *flock.Flock, timeout time.Duration) error {
	if timeout <= 0 {
		ok, err := lock.TryLock()
		if err != nil {
			return err
		}
		if !ok {
			return ErrLocked
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	op := func() error {
		ok, err := lock.TryLock()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLocked
		}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(20*time.Millisecond), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	return nil
}

// ReadSector implements Device.ReadSector.
func (d *FileDisk) ReadSector(n uint64, buf []byte) error {
	if err := checkArgs(n, d.sectors, buf); err != nil {
		return err
	}
	got, err := unix.Pread(int(d.file.Fd()), buf, int64(n*SectorSize))
	if err != nil {
		return fmt.Errorf("reading sector %d: %w", n, err)
	}
	if got != SectorSize {
		return fmt.Errorf("short read of sector %d (%d bytes): %w", n, got, linuxerr.EIO)
	}
	return nil
}

// WriteSector implements Device.WriteSector.
func (d *FileDisk) WriteSector(n uint64, buf []byte) error {
	if err := checkArgs(n, d.sectors, buf); err != nil {
		return err
	}
	got, err := unix.Pwrite(int(d.file.Fd()), buf, int64(n*SectorSize))
	if err != nil {
		return fmt.Errorf("writing sector %d: %w", n, err)
	}
	if got != SectorSize {
		return fmt.Errorf("short write of sector %d (%d bytes): %w", n, got, linuxerr.EIO)
	}
	return nil
}

// Size implements Device.Size.
func (d *FileDisk) Size() uint64 {
	return d.sectors
}

// Path returns the path of the image file.
func (d *FileDisk) Path() string {
	return d.file.Name()
}

// Close closes the image and releases its lock.
func (d *FileDisk) Close() error {
	err := d.file.Close()
	if uerr := d.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
