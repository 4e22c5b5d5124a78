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

package swap

import (
	"bytes"
	"errors"
	"testing"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
)

func page(b byte) []byte {
	p := make([]byte, hostarch.PageSize)
	for i := range p {
		p[i] = b + byte(i)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	s := New(disk.NewMemDisk(4 * SectorsPerSlot))
	if got := s.Slots(); got != 4 {
		t.Fatalf("Slots got %d want 4", got)
	}
	slots := make([]Slot, 4)
	for i := range slots {
		slot, err := s.SwapOut(page(byte(i)))
		if err != nil {
			t.Fatalf("SwapOut #%d failed: %v", i, err)
		}
		slots[i] = slot
	}
	for i := len(slots) - 1; i >= 0; i-- {
		dst := make([]byte, hostarch.PageSize)
		if err := s.SwapIn(slots[i], dst); err != nil {
			t.Fatalf("SwapIn(%d) failed: %v", slots[i], err)
		}
		if !bytes.Equal(dst, page(byte(i))) {
			t.Errorf("slot %d content mismatch", slots[i])
		}
	}
	if got := s.InUse(); got != 0 {
		t.Errorf("InUse got %d want 0", got)
	}
}

func TestExhaustion(t *testing.T) {
	s := New(disk.NewMemDisk(2 * SectorsPerSlot))
	for i := 0; i < 2; i++ {
		if _, err := s.SwapOut(page(0)); err != nil {
			t.Fatalf("SwapOut #%d failed: %v", i, err)
		}
	}
	if _, err := s.SwapOut(page(0)); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("SwapOut on full store got err %v want ENOSPC", err)
	}
	s.Free(0)
	slot, err := s.SwapOut(page(0))
	if err != nil || slot != 0 {
		t.Errorf("SwapOut after Free got (%d, %v) want (0, nil)", slot, err)
	}
}

func TestSwapInFreeSlot(t *testing.T) {
	s := New(disk.NewMemDisk(SectorsPerSlot))
	if err := s.SwapIn(0, make([]byte, hostarch.PageSize)); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("SwapIn of free slot got err %v want EINVAL", err)
	}
	if err := s.SwapIn(5, make([]byte, hostarch.PageSize)); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("SwapIn of out of range slot got err %v want EINVAL", err)
	}
}

// failingDisk fails every write.
type failingDisk struct {
	*disk.MemDisk
}

var errDisk = errors.New("disk on fire")

func (failingDisk) WriteSector(uint64, []byte) error {
	return errDisk
}

func TestDeviceFailure(t *testing.T) {
	s := New(failingDisk{disk.NewMemDisk(SectorsPerSlot)})
	if _, err := s.SwapOut(page(0)); !errors.Is(err, errDisk) {
		t.Errorf("SwapOut got err %v want %v", err, errDisk)
	}
	if got := s.InUse(); got != 0 {
		t.Errorf("InUse after failed SwapOut got %d want 0", got)
	}
}

func TestZeroCapacity(t *testing.T) {
	s := New(disk.NewMemDisk(SectorsPerSlot - 1))
	if _, err := s.SwapOut(page(0)); !linuxerr.Equals(linuxerr.ENOSPC, err) {
		t.Errorf("SwapOut on empty store got err %v want ENOSPC", err)
	}
}
