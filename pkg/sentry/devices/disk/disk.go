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

// Package disk provides the block devices that back the swap store.
package disk

import (
	"fmt"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/sync"
)

// SectorSize is the size of a disk sector in bytes.
const SectorSize = 512

// Device is a sector-addressed block device.
type Device interface {
	// ReadSector reads sector n into buf, which must be SectorSize bytes.
	ReadSector(n uint64, buf []byte) error

	// WriteSector writes buf, which must be SectorSize bytes, to sector n.
	WriteSector(n uint64, buf []byte) error

	// Size returns the capacity of the device in sectors.
	Size() uint64
}

// checkArgs validates a sector request against a device of size sectors.
func checkArgs(n, size uint64, buf []byte) error {
	if n >= size {
		return fmt.Errorf("sector %d beyond device of %d sectors: %w", n, size, linuxerr.EINVAL)
	}
	if len(buf) != SectorSize {
		return fmt.Errorf("buffer of %d bytes is not one sector: %w", len(buf), linuxerr.EINVAL)
	}
	return nil
}

// MemDisk is a Device held in memory.
type MemDisk struct {
	mu   sync.RWMutex
	data []byte
}

var _ Device = (*MemDisk)(nil)

// NewMemDisk returns a zeroed MemDisk of sectors sectors.
func NewMemDisk(sectors uint64) *MemDisk {
	return &MemDisk{data: make([]byte, sectors*SectorSize)}
}

// ReadSector implements Device.ReadSector.
func (d *MemDisk) ReadSector(n uint64, buf []byte) error {
	if err := checkArgs(n, d.Size(), buf); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	copy(buf, d.data[n*SectorSize:])
	return nil
}

// WriteSector implements Device.WriteSector.
func (d *MemDisk) WriteSector(n uint64, buf []byte) error {
	if err := checkArgs(n, d.Size(), buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.data[n*SectorSize:], buf)
	return nil
}

// Size implements Device.Size.
func (d *MemDisk) Size() uint64 {
	return uint64(len(d.data)) / SectorSize
}
