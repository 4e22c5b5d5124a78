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
)

// filePage is a page of a file mapping. Its content is read from and
// written back to the mapped file; it never uses swap.
type filePage struct {
	seg Segment
}

func (*filePage) typ() PageType {
	return File
}

func (fp *filePage) swapIn(ctx context.Context, p *Page, frame []byte) error {
	return ReadSegment(ctx, p, frame, fp.seg)
}

func (fp *filePage) swapOut(ctx context.Context, p *Page, frame []byte, dirty bool) error {
	if !dirty {
		return nil
	}
	return fp.writeBack(ctx, frame)
}

// writeBack writes the segment's bytes of frame to the file. Bytes beyond
// the current end of the file are not written, so the file never grows.
func (fp *filePage) writeBack(ctx context.Context, frame []byte) error {
	n, err := segmentLength(fp.seg)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	got, err := fp.seg.File.WriteAt(frame[:n], fp.seg.Offset)
	if int64(got) != n {
		if err == nil {
			err = linuxerr.EIO
		}
		return fmt.Errorf("writing %d bytes at offset %d of %s (wrote %d): %w", n, fp.seg.Offset, fp.seg.File.Name(), got, err)
	}
	fileWritebacks.Increment()
	ctx.Debugf("Wrote back %d bytes at offset %d of %s", n, fp.seg.Offset, fp.seg.File.Name())
	return nil
}

func (*filePage) destroy(*Page) {}
