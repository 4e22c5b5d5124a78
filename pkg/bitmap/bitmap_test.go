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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRemove(t *testing.T) {
	b := New(100)
	if !b.IsEmpty() {
		t.Fatalf("new bitmap is not empty")
	}
	for _, i := range []uint32{0, 5, 63, 64, 99} {
		b.Add(i)
	}
	// Adding twice must not double count.
	b.Add(5)
	if got, want := b.GetNumOnes(), uint32(5); got != want {
		t.Errorf("GetNumOnes() got %d want %d", got, want)
	}
	if diff := cmp.Diff([]uint32{0, 5, 63, 64, 99}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
	b.Remove(63)
	b.Remove(63)
	if b.Contains(63) {
		t.Errorf("bit 63 still set after Remove")
	}
	if got, want := b.GetNumOnes(), uint32(4); got != want {
		t.Errorf("GetNumOnes() got %d want %d", got, want)
	}
}

func TestIsFull(t *testing.T) {
	if b := New(0); !b.IsFull() {
		t.Errorf("zero-size bitmap is not full")
	}
	b := New(3)
	for i := uint32(0); i < 3; i++ {
		if b.IsFull() {
			t.Fatalf("bitmap full with %d of 3 bits set", i)
		}
		b.Add(i)
	}
	if !b.IsFull() {
		t.Errorf("bitmap with every bit set is not full")
	}
}

func TestFirstZero(t *testing.T) {
	for _, test := range []struct {
		name    string
		size    uint32
		set     []uint32
		start   uint32
		want    uint32
		wantErr bool
	}{
		{
			name: "empty",
			size: 10,
			want: 0,
		},
		{
			name: "skips set bits",
			size: 10,
			set:  []uint32{0, 1, 2},
			want: 3,
		},
		{
			name: "crosses block boundary",
			size: 130,
			set:  seq(0, 70),
			want: 70,
		},
		{
			name:  "honors start",
			size:  10,
			start: 4,
			want:  4,
		},
		{
			name:    "full",
			size:    3,
			set:     []uint32{0, 1, 2},
			wantErr: true,
		},
		{
			name:    "tail bits beyond size are not free",
			size:    65,
			set:     seq(0, 65),
			wantErr: true,
		},
		{
			name:    "start out of range",
			size:    8,
			start:   8,
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := New(test.size)
			for _, i := range test.set {
				b.Add(i)
			}
			got, err := b.FirstZero(test.start)
			if test.wantErr {
				if err == nil {
					t.Fatalf("FirstZero(%d) got %d, want error", test.start, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("FirstZero(%d) failed: %v", test.start, err)
			}
			if got != test.want {
				t.Errorf("FirstZero(%d) got %d want %d", test.start, got, test.want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	b := New(64)
	b.Add(3)
	c := b.Clone()
	c.Add(4)
	if b.Contains(4) {
		t.Errorf("mutating a clone changed the original")
	}
	if !c.Contains(3) || c.GetNumOnes() != 2 {
		t.Errorf("clone lost bits: %v", c.ToSlice())
	}
}

func seq(start, end uint32) []uint32 {
	var s []uint32
	for i := start; i < end; i++ {
		s = append(s, i)
	}
	return s
}
