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
	"fmt"
	"sort"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sync"
)

const (
	// Stdin is the standard input descriptor.
	Stdin int32 = 0

	// Stdout is the standard output descriptor.
	Stdout int32 = 1

	// firstFD is the lowest descriptor backed by a file.
	firstFD int32 = 2
)

// FileDescription is an open file and its position.
type FileDescription struct {
	file fsbridge.File

	// mu protects offset.
	mu     sync.Mutex
	offset int64
}

// File returns the underlying file.
func (fd *FileDescription) File() fsbridge.File {
	return fd.file
}

// FDTable maps descriptors to open files. Descriptors 0 and 1 are the
// standard streams and never refer to a file.
type FDTable struct {
	// mu protects files.
	mu    sync.Mutex
	files map[int32]*FileDescription
}

// NewFDTable returns an empty table.
func NewFDTable() *FDTable {
	return &FDTable{files: make(map[int32]*FileDescription)}
}

// NewFD installs file at the lowest free descriptor.
func (f *FDTable) NewFD(file fsbridge.File) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := firstFD
	for f.files[fd] != nil {
		fd++
	}
	f.files[fd] = &FileDescription{file: file}
	return fd
}

// Get returns the description for fd.
func (f *FDTable) Get(fd int32) (*FileDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.files[fd]
	if !ok {
		return nil, fmt.Errorf("descriptor %d: %w", fd, linuxerr.EBADF)
	}
	return d, nil
}

// Remove closes fd.
func (f *FDTable) Remove(fd int32) error {
	f.mu.Lock()
	d, ok := f.files[fd]
	delete(f.files, fd)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("descriptor %d: %w", fd, linuxerr.EBADF)
	}
	return d.file.Close()
}

// Size returns the number of open descriptors.
func (f *FDTable) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// GetFDs returns the open descriptors in ascending order.
func (f *FDTable) GetFDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fds := make([]int32, 0, len(f.files))
	for fd := range f.files {
		fds = append(fds, fd)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	return fds
}

// Fork returns a copy of the table. Every file is reopened, so the copy's
// positions advance independently.
func (f *FDTable) Fork() (*FDTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nf := NewFDTable()
	for fd, d := range f.files {
		file, err := d.file.Reopen()
		if err != nil {
			nf.closeAll()
			return nil, err
		}
		d.mu.Lock()
		nf.files[fd] = &FileDescription{file: file, offset: d.offset}
		d.mu.Unlock()
	}
	return nf, nil
}

// RemoveAll closes every descriptor.
func (f *FDTable) RemoveAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeAll()
}

// Preconditions: f.mu is locked, or f is not yet shared.
func (f *FDTable) closeAll() {
	for fd, d := range f.files {
		d.file.Close()
		delete(f.files, fd)
	}
}
