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
)

// MMapOpts specifies a file mapping.
type MMapOpts struct {
	// Addr is the address of the mapping. It must be page aligned and
	// non-zero.
	Addr hostarch.Addr

	// Length is the length of the mapping in bytes. It is rounded up to a
	// whole number of pages.
	Length uint64

	// Writable is true if user code may write the mapping.
	Writable bool

	// File is the file to map. The mapping holds its own handle, so File
	// may be closed once MMap returns.
	File fsbridge.File

	// Offset is the file offset mapped at Addr. It must be page aligned.
	Offset int64
}

// MMap creates a file mapping. Its pages are loaded lazily; the last page
// is zero past the end of Length, and pages beyond the end of the file read
// as zero. MMap either creates every page of the mapping or none.
func (mm *MemoryManager) MMap(ctx context.Context, opts MMapOpts) (hostarch.Addr, error) {
	if opts.File == nil {
		return 0, linuxerr.EBADF
	}
	if opts.Length == 0 || opts.Addr == 0 || !opts.Addr.IsPageAligned() {
		return 0, linuxerr.EINVAL
	}
	if opts.Offset < 0 || opts.Offset%hostarch.PageSize != 0 {
		return 0, linuxerr.EINVAL
	}
	length, ok := hostarch.PageRoundUp(opts.Length)
	if !ok {
		return 0, linuxerr.EINVAL
	}
	ar, ok := opts.Addr.ToRange(length)
	if !ok || !mm.layout.IsUser(ar.Start) || ar.End > mm.layout.KernelBase {
		return 0, linuxerr.EINVAL
	}
	size, err := opts.File.Length()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("mapping empty file %s: %w", opts.File.Name(), linuxerr.EINVAL)
	}

	file, err := opts.File.Reopen()
	if err != nil {
		return 0, err
	}
	m := &Mapping{
		Start:    ar.Start,
		Pages:    length / hostarch.PageSize,
		Writable: opts.Writable,
		File:     file,
	}

	mm.mu.Lock()
	if err := mm.insertMappingLocked(m, opts); err != nil {
		mm.mu.Unlock()
		file.Close()
		return 0, err
	}
	mm.mu.Unlock()
	ctx.Debugf("Mapped %s at %v (%d pages, offset %#x)", file.Name(), ar, m.Pages, opts.Offset)
	return ar.Start, nil
}

// insertMappingLocked creates the pages of m.
//
// Preconditions: mm.mu is locked for writing.
func (mm *MemoryManager) insertMappingLocked(m *Mapping, opts MMapOpts) error {
	if mm.destroyed {
		return fmt.Errorf("address space destroyed: %w", linuxerr.ESRCH)
	}
	ar := m.Range()
	if ps := mm.pages.rangeOf(ar); len(ps) != 0 {
		return fmt.Errorf("mapping %v overlaps %v: %w", ar, ps[0], linuxerr.EEXIST)
	}
	remaining := int64(opts.Length)
	offset := opts.Offset
	for va := ar.Start; va < ar.End; va += hostarch.PageSize {
		seg := Segment{
			File:   m.File,
			Offset: offset,
			Length: min(remaining, hostarch.PageSize),
		}
		p := mm.newPage(va, m.Writable, MarkerNone, newUninitPage(File, ReadSegment, seg))
		if !mm.pages.insert(p) {
			panic(fmt.Sprintf("page appeared at %v while mm.mu was held", va))
		}
		remaining -= seg.Length
		offset += hostarch.PageSize
	}
	mm.mappings[m.Start] = m
	return nil
}

// MUnmap removes the mapping that starts at addr. Dirty pages are written
// back to the file before they are released. The pages are removed even if
// a write-back fails; the first error is returned.
func (mm *MemoryManager) MUnmap(ctx context.Context, addr hostarch.Addr) error {
	mm.mu.Lock()
	m, ok := mm.mappings[addr]
	if !ok {
		mm.mu.Unlock()
		return fmt.Errorf("no mapping starts at %v: %w", addr, linuxerr.EINVAL)
	}
	delete(mm.mappings, addr)
	ps := mm.pages.rangeOf(m.Range())
	for _, p := range ps {
		mm.pages.delete(p)
	}
	mm.mu.Unlock()

	var firstErr error
	for _, p := range ps {
		if err := mm.destroyPage(ctx, p, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.File.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	ctx.Debugf("Unmapped %v", m.Range())
	return firstErr
}

// LoadSegment adds lazily loaded anonymous pages for a program segment at
// va: readBytes bytes read from file at offset, followed by zeroBytes zero
// bytes. va and offset must be page aligned, and the segment must span a
// whole number of pages.
func (mm *MemoryManager) LoadSegment(ctx context.Context, file fsbridge.File, offset int64, va hostarch.Addr, readBytes, zeroBytes uint64, writable bool) error {
	if !va.IsPageAligned() || offset < 0 || offset%hostarch.PageSize != 0 {
		return fmt.Errorf("segment at %v offset %#x is not page aligned: %w", va, offset, linuxerr.EINVAL)
	}
	total := readBytes + zeroBytes
	if total == 0 || total%hostarch.PageSize != 0 {
		return fmt.Errorf("segment at %v of %#x bytes is not a whole number of pages: %w", va, total, linuxerr.EINVAL)
	}
	ar, ok := va.ToRange(total)
	if !ok || !mm.layout.IsUser(ar.Start) || ar.End > mm.layout.KernelBase {
		return fmt.Errorf("segment %v outside user space: %w", ar, linuxerr.EINVAL)
	}

	var own fsbridge.File
	if readBytes > 0 {
		var err error
		if own, err = file.Reopen(); err != nil {
			return err
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.destroyed {
		if own != nil {
			own.Close()
		}
		return fmt.Errorf("address space destroyed: %w", linuxerr.ESRCH)
	}
	if ps := mm.pages.rangeOf(ar); len(ps) != 0 {
		if own != nil {
			own.Close()
		}
		return fmt.Errorf("segment %v overlaps %v: %w", ar, ps[0], linuxerr.EEXIST)
	}
	read := int64(readBytes)
	fileOff := offset
	for addr := ar.Start; addr < ar.End; addr += hostarch.PageSize {
		seg := Segment{
			Offset: fileOff,
			Length: max(min(read, hostarch.PageSize), 0),
		}
		if seg.Length > 0 {
			seg.File = own
		}
		mm.pages.insert(mm.newPage(addr, writable, MarkerNone, newUninitPage(Anon, ReadSegment, seg)))
		read -= hostarch.PageSize
		fileOff += hostarch.PageSize
	}
	if own != nil {
		mm.segmentFiles = append(mm.segmentFiles, own)
	}
	ctx.Debugf("Loaded segment %v from %s at offset %#x (%d file bytes)", ar, file.Name(), offset, readBytes)
	return nil
}

// Destroy tears down the address space: every mapping is unmapped with
// write-back, then every remaining page is released with its frame and
// swap slot. Destroy is idempotent. It returns the first write-back error;
// teardown completes regardless.
func (mm *MemoryManager) Destroy(ctx context.Context) error {
	mm.mu.Lock()
	if mm.destroyed {
		mm.mu.Unlock()
		return nil
	}
	mm.destroyed = true
	starts := make([]hostarch.Addr, 0, len(mm.mappings))
	for start := range mm.mappings {
		starts = append(starts, start)
	}
	mm.mu.Unlock()

	var firstErr error
	for _, start := range starts {
		if err := mm.MUnmap(ctx, start); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	mm.mu.Lock()
	ps := mm.pages.all()
	for _, p := range ps {
		mm.pages.delete(p)
	}
	files := mm.segmentFiles
	mm.segmentFiles = nil
	mm.mu.Unlock()

	for _, p := range ps {
		if err := mm.destroyPage(ctx, p, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range files {
		f.Close()
	}
	ctx.Debugf("Destroyed address space (%d pages)", len(ps))
	return firstErr
}
