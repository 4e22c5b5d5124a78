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
	"fmt"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/pgalloc"
	"gvisor.dev/vmcore/pkg/sentry/swap"
	"gvisor.dev/vmcore/pkg/sync"
)

// frame is a physical frame obtained from the FrameTable.
type frame struct {
	// pa and data are immutable.
	pa   pgalloc.PhysAddr
	data []byte

	// page is the page the frame backs. It is protected by FrameTable.mu.
	page *Page
}

// FrameTable tracks the frames backing resident pages of every address
// space in the system, and reclaims them under memory pressure.
type FrameTable struct {
	// pool and swap are immutable.
	pool *pgalloc.Pool
	swap *swap.Store

	// mu serializes frame allocation and eviction. It is held across the
	// I/O of an eviction, so at most one eviction is in flight.
	mu sync.Mutex

	// frames are the frames linked to a page, in the order they were
	// linked.
	frames []*frame
}

// NewFrameTable returns a FrameTable allocating from pool and evicting
// anonymous pages to store.
func NewFrameTable(pool *pgalloc.Pool, store *swap.Store) *FrameTable {
	return &FrameTable{
		pool: pool,
		swap: store,
	}
}

// Swap returns the swap store used for anonymous pages.
func (ft *FrameTable) Swap() *swap.Store {
	return ft.swap
}

// Len returns the number of frames backing a page.
func (ft *FrameTable) Len() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.frames)
}

// get returns an unlinked frame, evicting a resident page if the pool is
// exhausted. The frame's content is unspecified.
//
// Preconditions: The caller may hold the lock of the page the frame is for,
// but no other page lock.
func (ft *FrameTable) get(ctx context.Context) (*frame, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if pa, ok := ft.pool.Acquire(pgalloc.AllocOpts{}); ok {
		framesInUse.Increment()
		return &frame{pa: pa, data: ft.pool.Slice(pa)}, nil
	}
	i, victim := ft.selectVictimLocked()
	if victim == nil {
		return nil, fmt.Errorf("every resident page is busy: %w", linuxerr.ENOMEM)
	}
	f := ft.frames[i]
	if err := ft.evictLocked(ctx, i, victim); err != nil {
		return nil, fmt.Errorf("evicting %v: %w", victim, err)
	}
	return f, nil
}

// selectVictimLocked picks the frame to evict using the second-chance
// algorithm. Frames are scanned in the order they were linked. A page whose
// accessed bit is set has the bit cleared and is skipped; the first page
// whose bit is already clear is chosen. If every page was accessed, the last
// one scanned is chosen. Pages whose lock is held elsewhere are not
// candidates.
//
// On success, the victim's lock is held and its index in ft.frames is
// returned.
//
// Preconditions: ft.mu is locked.
func (ft *FrameTable) selectVictimLocked() (int, *Page) {
	last := -1
	for i, f := range ft.frames {
		p := f.page
		if !p.mu.TryLock() {
			continue
		}
		pt := p.mm.pt
		if pt.IsAccessed(p.addr) {
			pt.SetAccessed(p.addr, false)
			p.mu.Unlock()
			last = i
			continue
		}
		return i, p
	}
	// Every candidate was given a second chance. Take the last one that can
	// still be locked.
	for i := last; i >= 0; i-- {
		p := ft.frames[i].page
		if p.mu.TryLock() {
			return i, p
		}
	}
	return -1, nil
}

// evictLocked makes victim, the page backed by ft.frames[i], non-resident
// and unlinks the frame. The victim's own page table is updated, which need
// not belong to the caller's address space.
//
// Preconditions: ft.mu and victim.mu are locked. evictLocked unlocks
// victim.mu.
func (ft *FrameTable) evictLocked(ctx context.Context, i int, victim *Page) error {
	defer victim.mu.Unlock()
	f := ft.frames[i]
	pt := victim.mm.pt
	// Clearing the mapping first waits out in-flight accesses and captures
	// the final dirty bit.
	dirty := pt.Clear(victim.addr)
	if err := victim.ops.swapOut(ctx, victim, f.data, dirty); err != nil {
		if !pt.Install(victim.addr, f.pa, victim.writable) {
			panic(fmt.Sprintf("failed to restore mapping of %v", victim))
		}
		pt.SetDirty(victim.addr, dirty)
		return err
	}
	ft.frames = append(ft.frames[:i], ft.frames[i+1:]...)
	f.page = nil
	victim.frame = nil
	evictions.Increment()
	ctx.Debugf("Evicted %v from frame %v", victim, f.pa)
	return nil
}

// link records that f backs p. f becomes the newest frame.
//
// Preconditions: p.mu is locked. f was returned by get.
func (ft *FrameTable) link(f *frame, p *Page) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	f.page = p
	p.frame = f
	ft.frames = append(ft.frames, f)
}

// discard returns an unlinked frame to the pool.
func (ft *FrameTable) discard(f *frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.discardLocked(f)
}

// Preconditions: ft.mu is locked.
func (ft *FrameTable) discardLocked(f *frame) {
	ft.pool.Release(f.pa)
	framesInUse.Decrement()
}

// release unlinks f from its page and returns it to the pool.
//
// Preconditions: f.page.mu is locked.
func (ft *FrameTable) release(f *frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i, g := range ft.frames {
		if g == f {
			ft.frames = append(ft.frames[:i], ft.frames[i+1:]...)
			break
		}
	}
	f.page.frame = nil
	f.page = nil
	ft.discardLocked(f)
}

// claimLocked makes p resident. fill produces the page content in the new
// frame. If the page is already resident, claimLocked does nothing.
//
// Preconditions: p.mu is locked.
func (mm *MemoryManager) claimLocked(ctx context.Context, p *Page, fill func(frame []byte) error) error {
	if p.dead() {
		return fmt.Errorf("%v was removed: %w", p, linuxerr.EFAULT)
	}
	if p.frame != nil {
		return nil
	}
	f, err := mm.frames.get(ctx)
	if err != nil {
		return err
	}
	if fill == nil {
		fill = func(frame []byte) error { return p.ops.swapIn(ctx, p, frame) }
	}
	if err := fill(f.data); err != nil {
		mm.frames.discard(f)
		return err
	}
	if !mm.pt.Install(p.addr, f.pa, p.writable) {
		// The content has been resolved; store it again so the page stays
		// consistent with its backing store.
		if err := p.ops.swapOut(ctx, p, f.data, false); err != nil {
			ctx.Warningf("Failed to save %v after failed install: %v", p, err)
		}
		mm.frames.discard(f)
		return fmt.Errorf("installing mapping for %v: %w", p, linuxerr.EFAULT)
	}
	// A claimed page counts as accessed.
	mm.pt.SetAccessed(p.addr, true)
	mm.frames.link(f, p)
	return nil
}

// ClaimPage makes the page at va resident and maps it.
func (mm *MemoryManager) ClaimPage(ctx context.Context, va hostarch.Addr) error {
	p := mm.Find(va)
	if p == nil {
		return fmt.Errorf("no page at %v: %w", va, linuxerr.EFAULT)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return mm.claimLocked(ctx, p, nil)
}
