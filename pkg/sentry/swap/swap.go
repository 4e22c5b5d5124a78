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

// Package swap implements the swap store: a disk region divided into
// page-sized slots whose occupancy is tracked by an in-memory bitmap.
//
// Slot occupancy is never persisted; a Store always starts empty.
package swap

import (
	"fmt"

	"gvisor.dev/vmcore/pkg/bitmap"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/metric"
	"gvisor.dev/vmcore/pkg/sentry/devices/disk"
	"gvisor.dev/vmcore/pkg/sync"
)

// SectorsPerSlot is the number of contiguous sectors that hold one page.
const SectorsPerSlot = hostarch.PageSize / disk.SectorSize

var (
	swapIns    = metric.MustCreateNewUint64Metric("/vm/swap_ins", "Number of pages read back from swap.")
	swapOuts   = metric.MustCreateNewUint64Metric("/vm/swap_outs", "Number of pages written to swap.")
	slotsInUse = metric.MustCreateNewUint64Gauge("/vm/swap_slots_in_use", "Number of swap slots currently holding a page.")
)

// Slot identifies a swap slot.
type Slot uint32

// firstSector returns the first sector of slot s.
func (s Slot) firstSector() uint64 {
	return uint64(s) * SectorsPerSlot
}

// Store allocates swap slots on a block device.
type Store struct {
	dev disk.Device

	// mu protects used. It is held across the device writes of SwapOut, so
	// at most one slot allocation is in flight.
	mu   sync.Mutex
	used bitmap.Bitmap
}

// New returns a Store using all of dev.
func New(dev disk.Device) *Store {
	return &Store{
		dev:  dev,
		used: bitmap.New(uint32(dev.Size() / SectorsPerSlot)),
	}
}

// Slots returns the number of slots in the store.
func (s *Store) Slots() int {
	return int(s.used.Size())
}

// InUse returns the number of allocated slots.
func (s *Store) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.used.GetNumOnes())
}

// SwapOut writes the page src to a free slot and returns it. It returns
// ENOSPC if every slot is in use. If the device fails, the error is
// returned and no slot is consumed.
func (s *Store) SwapOut(src []byte) (Slot, error) {
	if len(src) != hostarch.PageSize {
		return 0, fmt.Errorf("swap out of %d bytes: %w", len(src), linuxerr.EINVAL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used.IsFull() {
		return 0, linuxerr.ENOSPC
	}
	idx, err := s.used.FirstZero(0)
	if err != nil {
		return 0, linuxerr.ENOSPC
	}
	slot := Slot(idx)
	for i := uint64(0); i < SectorsPerSlot; i++ {
		if err := s.dev.WriteSector(slot.firstSector()+i, src[i*disk.SectorSize:(i+1)*disk.SectorSize]); err != nil {
			return 0, fmt.Errorf("swap out to slot %d: %w", slot, err)
		}
	}
	s.used.Add(idx)
	swapOuts.Increment()
	slotsInUse.Increment()
	return slot, nil
}

// SwapIn reads slot into dst and frees the slot. Reading a free slot returns
// EINVAL. If the device fails, the slot remains allocated.
func (s *Store) SwapIn(slot Slot, dst []byte) error {
	if len(dst) != hostarch.PageSize {
		return fmt.Errorf("swap in of %d bytes: %w", len(dst), linuxerr.EINVAL)
	}
	if !s.allocated(slot) {
		return fmt.Errorf("swap in from free slot %d: %w", slot, linuxerr.EINVAL)
	}
	// The slot is owned by the caller until it is freed, so the reads need
	// not hold mu.
	for i := uint64(0); i < SectorsPerSlot; i++ {
		if err := s.dev.ReadSector(slot.firstSector()+i, dst[i*disk.SectorSize:(i+1)*disk.SectorSize]); err != nil {
			return fmt.Errorf("swap in from slot %d: %w", slot, err)
		}
	}
	s.Free(slot)
	swapIns.Increment()
	return nil
}

func (s *Store) allocated(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(slot) < s.used.Size() && s.used.Contains(uint32(slot))
}

// Free releases slot without reading it.
//
// Precondition: slot is allocated.
func (s *Store) Free(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.used.Contains(uint32(slot)) {
		panic(fmt.Sprintf("freeing free swap slot %d", slot))
	}
	s.used.Remove(uint32(slot))
	slotsInUse.Decrement()
}
