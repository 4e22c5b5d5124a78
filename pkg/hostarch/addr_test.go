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

package hostarch

import (
	"testing"
)

func TestRoundDownUp(t *testing.T) {
	for _, test := range []struct {
		addr     Addr
		wantDown Addr
		wantUp   Addr
	}{
		{0, 0, 0},
		{1, 0, PageSize},
		{PageSize - 1, 0, PageSize},
		{PageSize, PageSize, PageSize},
		{0x1234, 0x1000, 0x2000},
	} {
		if got := test.addr.RoundDown(); got != test.wantDown {
			t.Errorf("%v.RoundDown() got %v want %v", test.addr, got, test.wantDown)
		}
		got, ok := test.addr.RoundUp()
		if !ok || got != test.wantUp {
			t.Errorf("%v.RoundUp() got (%v, %t) want (%v, true)", test.addr, got, ok, test.wantUp)
		}
	}
}

func TestRoundUpWraps(t *testing.T) {
	if _, ok := (^Addr(0)).RoundUp(); ok {
		t.Errorf("RoundUp of the last address succeeded, want wraparound")
	}
}

func TestPagesIn(t *testing.T) {
	for _, test := range []struct {
		length uint64
		want   uint64
	}{
		{0, 0},
		{1, 1},
		{PageSize, 1},
		{5000, 2},
		{2 * PageSize, 2},
	} {
		if got := PagesIn(test.length); got != test.want {
			t.Errorf("PagesIn(%d) got %d want %d", test.length, got, test.want)
		}
	}
}

func TestAddrRange(t *testing.T) {
	ar, ok := Addr(0x1000).ToRange(2 * PageSize)
	if !ok {
		t.Fatalf("ToRange failed")
	}
	if got, want := ar.Length(), Addr(2*PageSize); got != want {
		t.Errorf("Length() got %v want %v", got, want)
	}
	if !ar.Contains(0x2fff) || ar.Contains(0x3000) {
		t.Errorf("%v: bad Contains results", ar)
	}
	if !ar.IsSupersetOf(AddrRange{0x1000, 0x2000}) {
		t.Errorf("%v should be a superset of [0x1000, 0x2000)", ar)
	}
	if ar.Overlaps(AddrRange{0x3000, 0x4000}) {
		t.Errorf("%v should not overlap [0x3000, 0x4000)", ar)
	}
	if !ar.WellFormed() || !(AddrRange{0x2000, 0x2000}).WellFormed() {
		t.Errorf("%v and an empty range should be well formed", ar)
	}
	if (AddrRange{0x3000, 0x1000}).WellFormed() {
		t.Errorf("[0x3000, 0x1000) should not be well formed")
	}
}

func TestAccessTypeString(t *testing.T) {
	for _, test := range []struct {
		at   AccessType
		want string
	}{
		{NoAccess, "---"},
		{Read, "r--"},
		{ReadWrite, "rw-"},
		{AnyAccess, "rwx"},
	} {
		if got := test.at.String(); got != test.want {
			t.Errorf("String() got %q want %q", got, test.want)
		}
	}
	if !ReadWrite.SupersetOf(Write) || Read.SupersetOf(Write) {
		t.Errorf("bad SupersetOf results")
	}
}
