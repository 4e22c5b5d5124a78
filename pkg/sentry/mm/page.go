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
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sync"
)

// PageType is the backing store of a page.
type PageType int

const (
	// Uninit pages have not been materialized yet.
	Uninit PageType = iota

	// Anon pages are backed by swap.
	Anon

	// File pages are backed by a mapped file.
	File
)

// String implements fmt.Stringer.
func (t PageType) String() string {
	switch t {
	case Uninit:
		return "uninit"
	case Anon:
		return "anon"
	case File:
		return "file"
	default:
		return fmt.Sprintf("PageType(%d)", int(t))
	}
}

// Marker tags pages that need special treatment.
type Marker int

const (
	// MarkerNone is the default.
	MarkerNone Marker = iota

	// MarkerStack marks user stack pages.
	MarkerStack
)

// Segment locates the file content of a lazily loaded page. Segments are
// values; every page holds its own copy.
type Segment struct {
	// File is the file to read from. It is nil for pages with no file
	// content.
	File fsbridge.File

	// Offset is the file offset of the first byte of the page.
	Offset int64

	// Length is the number of bytes of the page backed by the file, at most
	// hostarch.PageSize. The rest of the page is zero.
	Length int64
}

// Initializer populates the frame of a page being materialized for the
// first time. frame is exactly one page and is not zeroed.
type Initializer func(ctx context.Context, p *Page, frame []byte, seg Segment) error

// pageOps implements the behavior of a page variant.
//
// Methods are called with Page.mu held.
type pageOps interface {
	// typ returns the variant's PageType.
	typ() PageType

	// swapIn fills frame with the page's content.
	swapIn(ctx context.Context, p *Page, frame []byte) error

	// swapOut saves frame, the content of the page being made
	// non-resident. dirty is the dirty bit of the cleared hardware mapping.
	swapOut(ctx context.Context, p *Page, frame []byte, dirty bool) error

	// destroy releases the variant's backing store.
	destroy(p *Page)
}

// Page describes one page of an address space.
type Page struct {
	// addr, writable, marker and mm are immutable.
	addr     hostarch.Addr
	writable bool
	marker   Marker
	mm       *MemoryManager

	// mu serializes claim, eviction and destruction of the page.
	mu sync.Mutex

	// ops is the active variant. It is nil once the page is destroyed.
	// ops is protected by mu.
	ops pageOps

	// frame is the frame holding the page while it is resident. It is
	// written with both mu and FrameTable.mu held.
	frame *frame
}

// Addr returns the address of the page.
func (p *Page) Addr() hostarch.Addr {
	return p.addr
}

// Writable returns true if user code may write the page.
func (p *Page) Writable() bool {
	return p.writable
}

// Marker returns the page's marker.
func (p *Page) Marker() Marker {
	return p.marker
}

// Type returns the page's active variant.
func (p *Page) Type() PageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ops == nil {
		return Uninit
	}
	return p.ops.typ()
}

// Resident returns true if the page is backed by a frame.
func (p *Page) Resident() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame != nil
}

// String implements fmt.Stringer.
func (p *Page) String() string {
	return fmt.Sprintf("page %v", p.addr)
}

func (p *Page) dead() bool {
	return p.ops == nil
}

// newPage returns an unlinked page of mm at va.
func (mm *MemoryManager) newPage(va hostarch.Addr, writable bool, marker Marker, ops pageOps) *Page {
	return &Page{
		addr:     va,
		writable: writable,
		marker:   marker,
		mm:       mm,
		ops:      ops,
	}
}

// insertPage adds p to the SPT.
func (mm *MemoryManager) insertPage(p *Page) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.insertPageLocked(p)
}

// Preconditions: mm.mu is locked for writing.
func (mm *MemoryManager) insertPageLocked(p *Page) error {
	if mm.destroyed {
		return fmt.Errorf("address space destroyed: %w", linuxerr.ESRCH)
	}
	if !mm.pages.insert(p) {
		return fmt.Errorf("page already exists at %v: %w", p.addr, linuxerr.EEXIST)
	}
	return nil
}

// checkUserPage validates va as the address of a user page.
func (mm *MemoryManager) checkUserPage(va hostarch.Addr) error {
	if !va.IsPageAligned() {
		return fmt.Errorf("address %v is not page aligned: %w", va, linuxerr.EINVAL)
	}
	if !mm.layout.IsUser(va) {
		return fmt.Errorf("address %v is not a user address: %w", va, linuxerr.EFAULT)
	}
	return nil
}

// AllocPage adds an uninitialized page at va that materializes as a page of
// type typ filled with zeroes.
func (mm *MemoryManager) AllocPage(ctx context.Context, typ PageType, va hostarch.Addr, writable bool) error {
	return mm.AllocPageWithInitializer(ctx, typ, va, writable, nil, Segment{})
}

// AllocPageWithInitializer adds an uninitialized page at va. On first claim
// the page becomes a page of type typ whose content is produced by init
// from seg. A nil init zero-fills the page.
func (mm *MemoryManager) AllocPageWithInitializer(ctx context.Context, typ PageType, va hostarch.Addr, writable bool, init Initializer, seg Segment) error {
	return mm.allocPage(ctx, typ, va, writable, MarkerNone, init, seg)
}

func (mm *MemoryManager) allocPage(ctx context.Context, typ PageType, va hostarch.Addr, writable bool, marker Marker, init Initializer, seg Segment) error {
	if typ != Anon && typ != File {
		return fmt.Errorf("cannot allocate page of type %v: %w", typ, linuxerr.EINVAL)
	}
	if err := mm.checkUserPage(va); err != nil {
		return err
	}
	p := mm.newPage(va, writable, marker, newUninitPage(typ, init, seg))
	if err := mm.insertPage(p); err != nil {
		return err
	}
	ctx.Debugf("Allocated %v page at %v", typ, va)
	return nil
}

// RemovePage removes the page at va from the SPT and releases its frame and
// swap slot. The content of a file-backed page is discarded; use MUnmap to
// write it back.
func (mm *MemoryManager) RemovePage(ctx context.Context, va hostarch.Addr) error {
	mm.mu.Lock()
	p := mm.pages.find(va)
	if p == nil {
		mm.mu.Unlock()
		return fmt.Errorf("no page at %v: %w", va, linuxerr.EFAULT)
	}
	mm.pages.delete(p)
	mm.mu.Unlock()
	return mm.destroyPage(ctx, p, false)
}

// destroyPage releases every resource held by p, which must already have
// been removed from the SPT. If writeBack is true, dirty content of a
// file-backed page is first written to its file.
func (mm *MemoryManager) destroyPage(ctx context.Context, p *Page, writeBack bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead() {
		return nil
	}
	var err error
	if f := p.frame; f != nil {
		dirty := mm.pt.Clear(p.addr)
		if fp, ok := p.ops.(*filePage); ok && writeBack && dirty {
			err = fp.writeBack(ctx, f.data)
		}
		mm.frames.release(f)
	}
	p.ops.destroy(p)
	p.ops = nil
	return err
}
