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
	"io"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
)

// uninitPage is a page that has never been resident. It becomes an anonPage
// or a filePage the first time it is claimed.
type uninitPage struct {
	target PageType
	init   Initializer
	seg    Segment
}

func newUninitPage(target PageType, init Initializer, seg Segment) *uninitPage {
	return &uninitPage{target: target, init: init, seg: seg}
}

func (*uninitPage) typ() PageType {
	return Uninit
}

// swapIn runs the initializer and switches p to its target variant.
func (u *uninitPage) swapIn(ctx context.Context, p *Page, frame []byte) error {
	init := u.init
	if init == nil {
		init = ZeroFill
	}
	if err := init(ctx, p, frame, u.seg); err != nil {
		return fmt.Errorf("initializing %v: %w", p, err)
	}
	switch u.target {
	case Anon:
		p.ops = &anonPage{}
	case File:
		p.ops = &filePage{seg: u.seg}
	default:
		panic(fmt.Sprintf("uninit page with target %v", u.target))
	}
	return nil
}

func (*uninitPage) swapOut(_ context.Context, p *Page, _ []byte, _ bool) error {
	panic(fmt.Sprintf("swapOut of uninitialized %v", p))
}

func (*uninitPage) destroy(*Page) {}

// ZeroFill is an Initializer that zero-fills the page.
func ZeroFill(_ context.Context, _ *Page, frame []byte, _ Segment) error {
	clear(frame)
	return nil
}

// segmentLength returns the number of bytes of seg that lie within its file.
func segmentLength(seg Segment) (int64, error) {
	size, err := seg.File.Length()
	if err != nil {
		return 0, err
	}
	n := min(seg.Length, size-seg.Offset)
	return max(n, 0), nil
}

// ReadSegment is an Initializer that reads the page content described by
// seg and zero-fills the rest of the page. The file may end inside the
// segment; the missing bytes read as zero. A short read within the file is
// an I/O error.
func ReadSegment(_ context.Context, _ *Page, frame []byte, seg Segment) error {
	if seg.File == nil || seg.Length == 0 {
		clear(frame)
		return nil
	}
	if seg.Length < 0 || seg.Length > hostarch.PageSize {
		return fmt.Errorf("segment length %d: %w", seg.Length, linuxerr.EINVAL)
	}
	n, err := segmentLength(seg)
	if err != nil {
		return err
	}
	got, err := seg.File.ReadAt(frame[:n], seg.Offset)
	if int64(got) != n {
		if err == nil || err == io.EOF {
			err = linuxerr.EIO
		}
		return fmt.Errorf("reading %d bytes at offset %d of %s (got %d): %w", n, seg.Offset, seg.File.Name(), got, err)
	}
	clear(frame[n:])
	return nil
}
