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

// Package softmmu is a software implementation of platform.PageTable.
//
// The table translates user accesses itself, so it also maintains the
// accessed and dirty bits a hardware MMU would set.
package softmmu

import (
	"sync/atomic"

	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/pgalloc"
	"gvisor.dev/vmcore/pkg/sentry/platform"
	"gvisor.dev/vmcore/pkg/sync"
)

type pte struct {
	pa       pgalloc.PhysAddr
	writable bool
	accessed atomic.Bool
	dirty    atomic.Bool
}

// PageTable implements platform.PageTable.
type PageTable struct {
	pool       *pgalloc.Pool
	kernelBase hostarch.Addr

	// mu is held for reading by Access for the whole duration of the
	// access, and for writing by Install and Clear. Bits in entries are
	// updated atomically under either.
	mu      sync.RWMutex
	entries map[hostarch.Addr]*pte
}

var _ platform.PageTable = (*PageTable)(nil)

// New returns an empty page table translating into frames of pool. Addresses
// at or above kernelBase can never be installed.
func New(pool *pgalloc.Pool, kernelBase hostarch.Addr) *PageTable {
	return &PageTable{
		pool:       pool,
		kernelBase: kernelBase,
		entries:    make(map[hostarch.Addr]*pte),
	}
}

// Install implements platform.PageTable.Install.
func (pt *PageTable) Install(va hostarch.Addr, pa pgalloc.PhysAddr, writable bool) bool {
	if !va.IsPageAligned() || va >= pt.kernelBase {
		return false
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if _, ok := pt.entries[va]; ok {
		return false
	}
	pt.entries[va] = &pte{pa: pa, writable: writable}
	return true
}

// Clear implements platform.PageTable.Clear.
func (pt *PageTable) Clear(va hostarch.Addr) bool {
	va = va.RoundDown()
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[va]
	if !ok {
		return false
	}
	delete(pt.entries, va)
	return e.dirty.Load()
}

func (pt *PageTable) lookup(va hostarch.Addr) *pte {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.entries[va.RoundDown()]
}

// IsDirty implements platform.PageTable.IsDirty.
func (pt *PageTable) IsDirty(va hostarch.Addr) bool {
	if e := pt.lookup(va); e != nil {
		return e.dirty.Load()
	}
	return false
}

// SetDirty implements platform.PageTable.SetDirty.
func (pt *PageTable) SetDirty(va hostarch.Addr, dirty bool) {
	if e := pt.lookup(va); e != nil {
		e.dirty.Store(dirty)
	}
}

// IsAccessed implements platform.PageTable.IsAccessed.
func (pt *PageTable) IsAccessed(va hostarch.Addr) bool {
	if e := pt.lookup(va); e != nil {
		return e.accessed.Load()
	}
	return false
}

// SetAccessed implements platform.PageTable.SetAccessed.
func (pt *PageTable) SetAccessed(va hostarch.Addr, accessed bool) {
	if e := pt.lookup(va); e != nil {
		e.accessed.Store(accessed)
	}
}

// Resolve implements platform.PageTable.Resolve.
func (pt *PageTable) Resolve(va hostarch.Addr) (pgalloc.PhysAddr, bool) {
	if e := pt.lookup(va); e != nil {
		return e.pa, true
	}
	return 0, false
}

// Len returns the number of installed entries.
func (pt *PageTable) Len() int {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return len(pt.entries)
}

// Access translates va as a user access of type at and calls fn with the
// bytes of the backing frame from va to the end of its page. The accessed
// bit, and the dirty bit for writes, are set before fn runs. The mapping
// cannot be cleared while fn runs.
//
// If the translation fails, Access returns a *platform.Fault and fn is not
// called.
func (pt *PageTable) Access(va hostarch.Addr, at hostarch.AccessType, fn func(b []byte)) error {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	e, ok := pt.entries[va.RoundDown()]
	if !ok {
		return &platform.Fault{Addr: va, AccessType: at, Kind: platform.NotPresent, User: true}
	}
	if at.Write && !e.writable {
		return &platform.Fault{Addr: va, AccessType: at, Kind: platform.Protection, User: true}
	}
	e.accessed.Store(true)
	if at.Write {
		e.dirty.Store(true)
	}
	fn(pt.pool.Slice(e.pa)[va.PageOffset():])
	return nil
}
