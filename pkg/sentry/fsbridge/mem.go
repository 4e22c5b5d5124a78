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

package fsbridge

import (
	"fmt"
	"io"
	"sync/atomic"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/sync"
)

// memInode is the storage shared by every handle on a MemFile.
type memInode struct {
	name string

	mu   sync.RWMutex
	data []byte
}

// MemFile is a File held in memory.
type MemFile struct {
	inode  *memInode
	closed atomic.Bool
}

var _ File = (*MemFile)(nil)

// NewMemFile returns a handle on a new in-memory file holding a copy of data.
func NewMemFile(name string, data []byte) *MemFile {
	return &MemFile{inode: &memInode{name: name, data: append([]byte(nil), data...)}}
}

func (f *MemFile) checkOpen() error {
	if f.closed.Load() {
		return fmt.Errorf("%s: %w", f.inode.name, linuxerr.EBADF)
	}
	return nil
}

// ReadAt implements io.ReaderAt.ReadAt.
func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	f.inode.mu.RLock()
	defer f.inode.mu.RUnlock()
	if off >= int64(len(f.inode.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.inode.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.WriteAt. Writing past the end of the file
// extends it.
func (f *MemFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	f.inode.mu.Lock()
	defer f.inode.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(f.inode.data)) {
		f.inode.data = append(f.inode.data, make([]byte, end-int64(len(f.inode.data)))...)
	}
	return copy(f.inode.data[off:], p), nil
}

// Length implements File.Length.
func (f *MemFile) Length() (int64, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	f.inode.mu.RLock()
	defer f.inode.mu.RUnlock()
	return int64(len(f.inode.data)), nil
}

// Reopen implements File.Reopen.
func (f *MemFile) Reopen() (File, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	return &MemFile{inode: f.inode}, nil
}

// Close implements File.Close.
func (f *MemFile) Close() error {
	if f.closed.Swap(true) {
		return fmt.Errorf("%s: %w", f.inode.name, linuxerr.EBADF)
	}
	return nil
}

// Name implements File.Name.
func (f *MemFile) Name() string {
	return f.inode.name
}

// Bytes returns a copy of the file's contents.
func (f *MemFile) Bytes() []byte {
	f.inode.mu.RLock()
	defer f.inode.mu.RUnlock()
	return append([]byte(nil), f.inode.data...)
}
