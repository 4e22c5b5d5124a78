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

// Package mm implements the demand-paged virtual memory of a process.
//
// A MemoryManager owns the supplemental page table (SPT) of one address
// space: the set of Pages describing every user page that may be touched,
// whether or not it is currently resident. Pages are materialized lazily by
// the page fault handler. Physical frames are shared by every
// MemoryManager through a FrameTable, which evicts resident pages to their
// backing store when frames run out.
//
// Lock order:
//
//	Page.mu
//	  FrameTable.mu
//	    swap.Store.mu
//
// MemoryManager.mu protects the SPT index and the mapping records. It is
// never held while acquiring a Page.mu or the FrameTable.mu, and never
// across I/O. Pages other than the caller's own are only locked with
// TryLock while FrameTable.mu is held.
package mm

import (
	"fmt"
	"sort"

	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/metric"
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sentry/platform"
	"gvisor.dev/vmcore/pkg/sync"
)

var (
	pageFaults     = metric.MustCreateNewUint64Metric("/vm/page_faults", "Number of user page faults handled.")
	stackGrowths   = metric.MustCreateNewUint64Metric("/vm/stack_growths", "Number of page faults satisfied by growing the stack.")
	evictions      = metric.MustCreateNewUint64Metric("/vm/evictions", "Number of resident pages evicted to reclaim a frame.")
	fileWritebacks = metric.MustCreateNewUint64Metric("/vm/file_writebacks", "Number of dirty file-backed pages written back to their file.")
	framesInUse    = metric.MustCreateNewUint64Gauge("/vm/frames_in_use", "Number of physical frames backing resident pages.")
)

const (
	// DefaultStackTop is the default top of the user stack.
	DefaultStackTop = hostarch.Addr(0x47480000)

	// DefaultMaxStack is the default maximum size of the user stack.
	DefaultMaxStack = 1 << 20

	// DefaultKernelBase is the default first kernel address.
	DefaultKernelBase = hostarch.Addr(0x8004000000)
)

// Layout describes the fixed regions of a user address space.
type Layout struct {
	// MinUserAddr is the lowest mappable address. Page zero is never
	// mapped.
	MinUserAddr hostarch.Addr

	// KernelBase is the first address of kernel space.
	KernelBase hostarch.Addr

	// StackTop is the address just above the user stack.
	StackTop hostarch.Addr

	// MaxStack is the maximum size of the user stack in bytes.
	MaxStack uint64
}

// DefaultLayout returns the default Layout.
func DefaultLayout() Layout {
	return Layout{
		MinUserAddr: hostarch.PageSize,
		KernelBase:  DefaultKernelBase,
		StackTop:    DefaultStackTop,
		MaxStack:    DefaultMaxStack,
	}
}

// Validate checks that the layout is self-consistent.
func (l Layout) Validate() error {
	if !l.MinUserAddr.IsPageAligned() || l.MinUserAddr == 0 {
		return fmt.Errorf("minimum user address %v must be a non-zero page boundary", l.MinUserAddr)
	}
	if !l.KernelBase.IsPageAligned() || !l.StackTop.IsPageAligned() {
		return fmt.Errorf("kernel base %v and stack top %v must be page aligned", l.KernelBase, l.StackTop)
	}
	if l.StackTop > l.KernelBase {
		return fmt.Errorf("stack top %v is above kernel base %v", l.StackTop, l.KernelBase)
	}
	if l.MaxStack < hostarch.PageSize || l.MaxStack%hostarch.PageSize != 0 {
		return fmt.Errorf("max stack %#x must be a non-zero multiple of the page size", l.MaxStack)
	}
	if uint64(l.StackTop-l.MinUserAddr) < l.MaxStack {
		return fmt.Errorf("max stack %#x does not fit below stack top %v", l.MaxStack, l.StackTop)
	}
	return nil
}

// IsUser returns true if va is a mappable user address.
func (l Layout) IsUser(va hostarch.Addr) bool {
	return va >= l.MinUserAddr && va < l.KernelBase
}

// StackLimit returns the lowest address the stack may grow to.
func (l Layout) StackLimit() hostarch.Addr {
	return l.StackTop - hostarch.Addr(l.MaxStack)
}

// Mapping is a run of file-backed pages created by one MMap call. The pages
// share one reopened handle on the file, owned by the Mapping.
type Mapping struct {
	// Start is the address of the first page.
	Start hostarch.Addr

	// Pages is the number of pages in the mapping.
	Pages uint64

	// Writable is true if the pages may be written.
	Writable bool

	// File is the mapping's own handle on the mapped file.
	File fsbridge.File
}

// Range returns the address range covered by m.
func (m *Mapping) Range() hostarch.AddrRange {
	return hostarch.AddrRange{Start: m.Start, End: m.Start + hostarch.Addr(m.Pages*hostarch.PageSize)}
}

// MemoryManager implements a virtual address space.
type MemoryManager struct {
	// frames is shared by every MemoryManager of the system. frames is
	// immutable.
	frames *FrameTable

	// pt is the hardware page table of this address space. pt is immutable.
	pt platform.PageTable

	// layout is immutable.
	layout Layout

	// mu protects the fields below.
	mu sync.RWMutex

	// pages is the supplemental page table.
	pages spt

	// mappings are the file mappings, keyed by start address.
	mappings map[hostarch.Addr]*Mapping

	// segmentFiles are the handles owned by lazily loaded segment pages.
	segmentFiles []fsbridge.File

	// stackBottom is the lowest address of the stack allocated so far.
	stackBottom hostarch.Addr

	// destroyed is set by Destroy.
	destroyed bool
}

// NewMemoryManager returns a MemoryManager with an empty address space.
func NewMemoryManager(frames *FrameTable, pt platform.PageTable, layout Layout) *MemoryManager {
	return &MemoryManager{
		frames:      frames,
		pt:          pt,
		layout:      layout,
		pages:       newSPT(),
		mappings:    make(map[hostarch.Addr]*Mapping),
		stackBottom: layout.StackTop,
	}
}

// Layout returns the layout of the address space.
func (mm *MemoryManager) Layout() Layout {
	return mm.layout
}

// PageTable returns the hardware page table of the address space.
func (mm *MemoryManager) PageTable() platform.PageTable {
	return mm.pt
}

// StackBottom returns the lowest stack address allocated so far.
func (mm *MemoryManager) StackBottom() hostarch.Addr {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.stackBottom
}

// NumPages returns the number of pages in the SPT.
func (mm *MemoryManager) NumPages() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.pages.len()
}

// Mappings returns the file mappings, ordered by address.
func (mm *MemoryManager) Mappings() []Mapping {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	ms := make([]Mapping, 0, len(mm.mappings))
	for _, m := range mm.mappings {
		ms = append(ms, *m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Start < ms[j].Start })
	return ms
}
