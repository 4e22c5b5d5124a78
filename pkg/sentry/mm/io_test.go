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


package mm

import (
	"bytes"
	"sync/atomic"
	"testing"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sentry/swap"
)

// ioFaults switches failures on and off for every handle of a faultyFile
// and for a faultyDisk.
type ioFaults struct {
	short      atomic.Bool
	failReads  atomic.Bool
	failWrites atomic.Bool
}

// faultyFile transfers only half of each request while short is set.
type faultyFile struct {
	fsbridge.File
	faults *ioFaults
}

func (f *faultyFile) ReadAt(b []byte, off int64) (int, error) {
	if f.faults.short.Load() && len(b) > 1 {
		b = b[:len(b)/2]
	}
	return f.File.ReadAt(b, off)
}

func (f *faultyFile) WriteAt(b []byte, off int64) (int, error) {
	if f.faults.short.Load() && len(b) > 1 {
		b = b[:len(b)/2]
	}
	return f.File.WriteAt(b, off)
}

func (f *faultyFile) Reopen() (fsbridge.File, error) {
	g, err := f.File.Reopen()
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: g, faults: f.faults}, nil
}

// faultyDisk fails sector reads while failReads is set and sector writes
// while failWrites is set.
type faultyDisk struct {
	disk.Device
	faults *ioFaults
}

func (d *faultyDisk) ReadSector(n uint64, buf []byte) error {
	if d.faults.failReads.Load() {
		return linuxerr.EIO
	}
	return d.Device.ReadSector(n, buf)
}

func (d *faultyDisk) WriteSector(n uint64, buf []byte) error {
	if d.faults.failWrites.Load() {
		return linuxerr.EIO
	}
	return d.Device.WriteSector(n, buf)
}

func TestShortFileReadFailsClaim(t *testing.T) {
	sys := newTestSystem(t, 2, 2)
	faults := &ioFaults{}
	faults.short.Store(true)
	file := &faultyFile{File: fsbridge.NewMemFile("data", bytes.Repeat([]byte{'a'}, hostarch.PageSize)), faults: faults}
	p := sys.newProc()
	addr, err := p.mm.MMap(sys.ctx, MMapOpts{Addr: pageAt(0), Length: hostarch.PageSize, File: file})
	if err != nil {
		t.Fatalf("MMap failed: %v", err)
	}

	if _, err := p.load(addr, 1); !linuxerr.Equals(linuxerr.EIO, err) {
		t.Errorf("load with short file read got err %v want EIO", err)
	}
	if p.mm.Find(addr).Resident() {
		t.Errorf("page is resident after its read failed")
	}
	if got := sys.pool.InUse(); got != 0 {
		t.Errorf("frames in use after failed read got %d want 0", got)
	}

	faults.short.Store(false)
	if got := p.mustLoad(addr, 1); string(got) != "a" {
		t.Errorf("load after recovery got %q want %q", got, "a")
	}
}

func TestShortWriteBackKeepsPageResident(t *testing.T) {
	sys := newTestSystem(t, 1, 1)
	faults := &ioFaults{}
	mem := fsbridge.NewMemFile("data", bytes.Repeat([]byte{'-'}, hostarch.PageSize))
	p := sys.newProc()
	addr, err := p.mm.MMap(sys.ctx, MMapOpts{Addr: pageAt(0), Length: hostarch.PageSize, Writable: true, File: &faultyFile{File: mem, faults: faults}})
	if err != nil {
		t.Fatalf("MMap failed: %v", err)
	}
	p.mustAlloc(pageAt(1))
	p.mustStore(addr, []byte("dirty"))

	faults.short.Store(true)
	before := fileWritebacks.Value()
	if err := p.store(pageAt(1), []byte{1}); !linuxerr.Equals(linuxerr.EIO, err) {
		t.Fatalf("store forcing a failed write-back got err %v want EIO", err)
	}
	if got := fileWritebacks.Value() - before; got != 0 {
		t.Errorf("write-backs got %d want 0", got)
	}
	if !p.mm.Find(addr).Resident() {
		t.Errorf("file page is not resident after its write-back failed")
	}
	if _, ok := p.pt.Resolve(addr); !ok {
		t.Errorf("mapping of %v was not restored", addr)
	}
	if !p.pt.IsDirty(addr) {
		t.Errorf("dirty bit of %v was not restored", addr)
	}
	if got := p.mustLoad(addr, 5); string(got) != "dirty" {
		t.Errorf("file page got %q want %q", got, "dirty")
	}

	faults.short.Store(false)
	if err := p.mm.MUnmap(sys.ctx, addr); err != nil {
		t.Fatalf("MUnmap failed: %v", err)
	}
	if got := string(mem.Bytes()[:6]); got != "dirty-" {
		t.Errorf("file content got %q want %q", got, "dirty-")
	}
}

func TestSwapDeviceFailure(t *testing.T) {
	faults := &ioFaults{}
	sys := newTestSystemOn(t, 1, &faultyDisk{Device: disk.NewMemDisk(4 * swap.SectorsPerSlot), faults: faults})
	p := sys.newProc()
	p.mustAlloc(pageAt(0))
	p.mustAlloc(pageAt(1))
	p.mustStore(pageAt(0), pattern(0))

	// A failed swap out leaves the victim resident and uses no slot.
	faults.failWrites.Store(true)
	if err := p.store(pageAt(1), pattern(1)); !linuxerr.Equals(linuxerr.EIO, err) {
		t.Fatalf("store with failing swap device got err %v want EIO", err)
	}
	if !p.mm.Find(pageAt(0)).Resident() {
		t.Errorf("victim of failed swap out is not resident")
	}
	if got := sys.store.InUse(); got != 0 {
		t.Errorf("swap slots in use after failed swap out got %d want 0", got)
	}

	faults.failWrites.Store(false)
	p.mustStore(pageAt(1), pattern(1))
	if p.mm.Find(pageAt(0)).Resident() {
		t.Fatalf("page 0 still resident with one frame")
	}

	// A failed swap in keeps the slot so the content survives. Page 1 is
	// evicted first to free the frame.
	faults.failReads.Store(true)
	if _, err := p.load(pageAt(0), 1); !linuxerr.Equals(linuxerr.EIO, err) {
		t.Errorf("load with failing swap device got err %v want EIO", err)
	}
	if p.mm.Find(pageAt(0)).Resident() {
		t.Errorf("page 0 is resident after its swap in failed")
	}
	if got := sys.store.InUse(); got != 2 {
		t.Errorf("swap slots in use after failed swap in got %d want 2", got)
	}
	if got := sys.pool.InUse(); got != 0 {
		t.Errorf("frames in use after failed swap in got %d want 0", got)
	}

	faults.failReads.Store(false)
	if got := p.mustLoad(pageAt(0), hostarch.PageSize); !bytes.Equal(got, pattern(0)) {
		t.Errorf("page 0 content lost across a failed swap in")
	}
	if got := p.mustLoad(pageAt(1), hostarch.PageSize); !bytes.Equal(got, pattern(1)) {
		t.Errorf("page 1 content lost")
	}
}
