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

// Package pgalloc contains the page frame allocator used by the memory
// manager.
//
// A Pool owns a fixed arena of page-sized frames carved out of a single
// anonymous host mapping. Frames are identified by their PhysAddr, the byte
// offset of the frame within the arena.
package pgalloc

import (
	"fmt"

	"golang.org/x/sys/unix"

	"gvisor.dev/vmcore/pkg/bitmap"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sync"
)

// PhysAddr is the physical address of a frame within a Pool.
type PhysAddr uint64

// Index returns the frame number of pa.
func (pa PhysAddr) Index() uint32 {
	return uint32(pa >> hostarch.PageShift)
}

// String implements fmt.Stringer.
func (pa PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(pa))
}

// AllocOpts are options used for allocations.
type AllocOpts struct {
	// If Zero is true, the frame is zero-filled before it is returned.
	// Otherwise it may contain the contents of a previously released frame.
	Zero bool
}

// Pool is a fixed-size pool of physical page frames.
type Pool struct {
	// arena is the host mapping holding every frame. It is immutable after
	// NewPool until Close.
	arena []byte

	// mu protects used.
	mu   sync.Mutex
	used bitmap.Bitmap

	// next is the frame index FirstZero starts searching from.
	next uint32
}

// NewPool returns a Pool of frames page frames.
func NewPool(frames int) (*Pool, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid frame count %d", frames)
	}
	arena, err := unix.Mmap(-1, 0, frames*hostarch.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d frames: %w", frames, err)
	}
	return &Pool{
		arena: arena,
		used:  bitmap.New(uint32(frames)),
	}, nil
}

// Close releases the arena. Frames must not be used after Close.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.arena == nil {
		return nil
	}
	err := unix.Munmap(p.arena)
	p.arena = nil
	return err
}

// Acquire allocates a frame. It returns false if every frame is in use.
func (p *Pool) Acquire(opts AllocOpts) (PhysAddr, bool) {
	p.mu.Lock()
	idx, err := p.used.FirstZero(p.next)
	if err != nil && p.next != 0 {
		idx, err = p.used.FirstZero(0)
	}
	if err != nil {
		p.mu.Unlock()
		return 0, false
	}
	p.used.Add(idx)
	p.next = idx + 1
	if p.next == p.used.Size() {
		p.next = 0
	}
	p.mu.Unlock()

	pa := PhysAddr(idx) << hostarch.PageShift
	if opts.Zero {
		clear(p.Slice(pa))
	}
	return pa, true
}

// Release returns the frame at pa to the pool.
//
// Precondition: pa was returned by Acquire and has not been released since.
func (p *Pool) Release(pa PhysAddr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := pa.Index()
	if !p.used.Contains(idx) {
		panic(fmt.Sprintf("releasing free frame %v", pa))
	}
	p.used.Remove(idx)
}

// Slice returns the kernel view of the frame at pa.
func (p *Pool) Slice(pa PhysAddr) []byte {
	off := uint64(pa)
	return p.arena[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Len returns the number of frames in the pool.
func (p *Pool) Len() int {
	return int(p.used.Size())
}

// InUse returns the number of frames currently allocated.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.used.GetNumOnes())
}
