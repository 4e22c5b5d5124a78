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

	"github.com/google/btree"

	"gvisor.dev/vmcore/pkg/hostarch"
)

// spt is the supplemental page table index.
type spt struct {
	tree *btree.BTreeG[*Page]
}

func pageLess(a, b *Page) bool {
	return a.addr < b.addr
}

func newSPT() spt {
	return spt{tree: btree.NewG(8, pageLess)}
}

func (s spt) len() int {
	return s.tree.Len()
}

// find returns the page containing va.
func (s spt) find(va hostarch.Addr) *Page {
	p, ok := s.tree.Get(&Page{addr: va.RoundDown()})
	if !ok {
		return nil
	}
	return p
}

// insert adds p. It returns false, leaving the table unchanged, if a page
// already exists at p's address.
func (s spt) insert(p *Page) bool {
	if s.tree.Has(p) {
		return false
	}
	s.tree.ReplaceOrInsert(p)
	return true
}

func (s spt) delete(p *Page) {
	s.tree.Delete(p)
}

// rangeOf returns the pages in ar, in ascending order.
//
// Preconditions: ar.WellFormed().
func (s spt) rangeOf(ar hostarch.AddrRange) []*Page {
	if !ar.WellFormed() {
		panic(fmt.Sprintf("malformed range %v", ar))
	}
	var ps []*Page
	s.tree.AscendRange(&Page{addr: ar.Start}, &Page{addr: ar.End}, func(p *Page) bool {
		ps = append(ps, p)
		return true
	})
	return ps
}

// all returns every page in ascending order.
func (s spt) all() []*Page {
	ps := make([]*Page, 0, s.tree.Len())
	s.tree.Ascend(func(p *Page) bool {
		ps = append(ps, p)
		return true
	})
	return ps
}

// Find returns the page containing va, or nil if va is not in the SPT.
func (mm *MemoryManager) Find(va hostarch.Addr) *Page {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.pages.find(va)
}

// ForEach calls fn for every page in ascending address order, stopping if
// fn returns false. fn is called without mm.mu held, on the pages present
// when ForEach was called.
func (mm *MemoryManager) ForEach(fn func(p *Page) bool) {
	mm.mu.RLock()
	ps := mm.pages.all()
	mm.mu.RUnlock()
	for _, p := range ps {
		if !fn(p) {
			return
		}
	}
}
