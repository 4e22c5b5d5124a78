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

package pgalloc

import (
	"testing"

	"gvisor.dev/vmcore/pkg/hostarch"
)

func newPool(t *testing.T, frames int) *Pool {
	t.Helper()
	p, err := NewPool(frames)
	if err != nil {
		t.Fatalf("NewPool(%d) failed: %v", frames, err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return p
}

func TestAcquireExhaustion(t *testing.T) {
	p := newPool(t, 4)
	seen := make(map[PhysAddr]bool)
	for i := 0; i < 4; i++ {
		pa, ok := p.Acquire(AllocOpts{})
		if !ok {
			t.Fatalf("Acquire #%d failed", i)
		}
		if seen[pa] {
			t.Fatalf("Acquire returned %v twice", pa)
		}
		if pa%hostarch.PageSize != 0 {
			t.Errorf("frame %v is not page aligned", pa)
		}
		seen[pa] = true
	}
	if _, ok := p.Acquire(AllocOpts{}); ok {
		t.Errorf("Acquire on a full pool succeeded")
	}
	if got := p.InUse(); got != 4 {
		t.Errorf("InUse got %d want 4", got)
	}
}

func TestReleaseReuse(t *testing.T) {
	p := newPool(t, 2)
	a, _ := p.Acquire(AllocOpts{})
	b, _ := p.Acquire(AllocOpts{})
	p.Release(a)
	c, ok := p.Acquire(AllocOpts{})
	if !ok {
		t.Fatalf("Acquire after Release failed")
	}
	if c != a {
		t.Errorf("Acquire got %v want released frame %v", c, a)
	}
	p.Release(b)
	p.Release(c)
	if got := p.InUse(); got != 0 {
		t.Errorf("InUse got %d want 0", got)
	}
}

func TestZero(t *testing.T) {
	p := newPool(t, 1)
	pa, _ := p.Acquire(AllocOpts{})
	buf := p.Slice(pa)
	for i := range buf {
		buf[i] = 0xaa
	}
	p.Release(pa)

	pa, _ = p.Acquire(AllocOpts{Zero: true})
	for i, b := range p.Slice(pa) {
		if b != 0 {
			t.Fatalf("byte %d of zeroed frame is %#x", i, b)
		}
	}
}

func TestSliceBounds(t *testing.T) {
	p := newPool(t, 3)
	for i := 0; i < 3; i++ {
		pa, _ := p.Acquire(AllocOpts{})
		if got := len(p.Slice(pa)); got != hostarch.PageSize {
			t.Errorf("len(Slice(%v)) got %d want %d", pa, got, hostarch.PageSize)
		}
		if got := cap(p.Slice(pa)); got != hostarch.PageSize {
			t.Errorf("cap(Slice(%v)) got %d want %d", pa, got, hostarch.PageSize)
		}
	}
}

func TestReleaseFreePanics(t *testing.T) {
	p := newPool(t, 1)
	defer func() {
		if recover() == nil {
			t.Errorf("Release of a free frame did not panic")
		}
	}()
	p.Release(0)
}
