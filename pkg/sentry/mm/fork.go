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
	"gvisor.dev/vmcore/pkg/sentry/fsbridge"
	"gvisor.dev/vmcore/pkg/sentry/platform"
)

// Fork returns a copy of the address space using page table pt. The copy
// shares no frames, swap slots or file handles with mm: pages that were
// never materialized are copied lazily with their own Segment, and every
// other page is made resident in the child and filled from the parent's
// frame.
//
// On failure the partial copy is destroyed.
func (mm *MemoryManager) Fork(ctx context.Context, pt platform.PageTable) (*MemoryManager, error) {
	child := NewMemoryManager(mm.frames, pt, mm.layout)

	mm.mu.RLock()
	mappings := make([]*Mapping, 0, len(mm.mappings))
	for _, m := range mm.mappings {
		mappings = append(mappings, m)
	}
	segmentFiles := append([]fsbridge.File(nil), mm.segmentFiles...)
	stackBottom := mm.stackBottom
	mm.mu.RUnlock()

	// files maps the parent's handles to the child's.
	files := make(map[fsbridge.File]fsbridge.File)
	fail := func(err error) (*MemoryManager, error) {
		if derr := child.Destroy(ctx); derr != nil {
			ctx.Warningf("Failed to destroy partial fork: %v", derr)
		}
		return nil, fmt.Errorf("fork: %w", err)
	}

	child.mu.Lock()
	child.stackBottom = stackBottom
	for _, m := range mappings {
		f, err := m.File.Reopen()
		if err != nil {
			child.mu.Unlock()
			return fail(err)
		}
		files[m.File] = f
		cm := *m
		cm.File = f
		child.mappings[cm.Start] = &cm
	}
	for _, sf := range segmentFiles {
		f, err := sf.Reopen()
		if err != nil {
			child.mu.Unlock()
			return fail(err)
		}
		files[sf] = f
		child.segmentFiles = append(child.segmentFiles, f)
	}
	child.mu.Unlock()

	var (
		copied int
		err    error
	)
	mm.ForEach(func(p *Page) bool {
		if err = child.copyPage(ctx, p, files); err != nil {
			err = fmt.Errorf("copying %v: %w", p, err)
			return false
		}
		copied++
		return true
	})
	if err != nil {
		return fail(err)
	}
	ctx.Debugf("Forked address space (%d pages)", copied)
	return child, nil
}

// childSegment returns the child's copy of seg. Files not owned by the
// address space are shared with the parent.
func childSegment(seg Segment, files map[fsbridge.File]fsbridge.File) Segment {
	if f, ok := files[seg.File]; ok {
		seg.File = f
	}
	return seg
}

// copyPage adds to mm a copy of the parent page p.
func (mm *MemoryManager) copyPage(ctx context.Context, p *Page, files map[fsbridge.File]fsbridge.File) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead() {
		return nil
	}

	if u, ok := p.ops.(*uninitPage); ok {
		ops := newUninitPage(u.target, u.init, childSegment(u.seg, files))
		return mm.insertPage(mm.newPage(p.addr, p.writable, p.marker, ops))
	}

	// Bring the parent page in; holding p.mu keeps it resident until the
	// copy is done.
	if err := p.mm.claimLocked(ctx, p, nil); err != nil {
		return err
	}
	var ops pageOps
	switch o := p.ops.(type) {
	case *anonPage:
		ops = &anonPage{}
	case *filePage:
		ops = &filePage{seg: childSegment(o.seg, files)}
	default:
		panic(fmt.Sprintf("unexpected page variant %T", p.ops))
	}
	cp := mm.newPage(p.addr, p.writable, p.marker, ops)
	if err := mm.insertPage(cp); err != nil {
		return err
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	src := p.frame.data
	if err := mm.claimLocked(ctx, cp, func(frame []byte) error {
		copy(frame, src)
		return nil
	}); err != nil {
		return err
	}
	if _, ok := ops.(*filePage); ok && p.mm.pt.IsDirty(p.addr) {
		mm.pt.SetDirty(cp.addr, true)
	}
	return nil
}
