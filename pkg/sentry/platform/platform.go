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

// Package platform provides the hardware abstractions the memory manager
// programs: a per-address-space page table and the fault it raises.
package platform

import (
	"fmt"

	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/pgalloc"
)

// PageTable is the hardware page table of one address space. Entries are
// keyed by page-aligned virtual address.
//
// All methods are safe for concurrent use.
type PageTable interface {
	// Install maps va to pa. It returns false if va is already mapped or
	// cannot be mapped (not page aligned or outside user space).
	Install(va hostarch.Addr, pa pgalloc.PhysAddr, writable bool) bool

	// Clear removes the mapping for va, if any, and returns the dirty bit
	// the entry held. Clear waits for in-flight accesses to va.
	Clear(va hostarch.Addr) bool

	// IsDirty returns the dirty bit of the entry for va.
	IsDirty(va hostarch.Addr) bool

	// SetDirty sets the dirty bit of the entry for va. It has no effect if
	// va is not mapped.
	SetDirty(va hostarch.Addr, dirty bool)

	// IsAccessed returns the accessed bit of the entry for va.
	IsAccessed(va hostarch.Addr) bool

	// SetAccessed sets the accessed bit of the entry for va. It has no
	// effect if va is not mapped.
	SetAccessed(va hostarch.Addr, accessed bool)

	// Resolve returns the frame mapped at va.
	Resolve(va hostarch.Addr) (pgalloc.PhysAddr, bool)
}

// FaultKind classifies a Fault.
type FaultKind int

const (
	// NotPresent means no translation existed for the address.
	NotPresent FaultKind = iota

	// Protection means a translation existed but did not permit the access.
	Protection
)

// String implements fmt.Stringer.
func (k FaultKind) String() string {
	switch k {
	case NotPresent:
		return "not-present"
	case Protection:
		return "protection"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Fault describes a failed translation. It is returned as an error by
// software MMUs and consumed by the memory manager's fault handler.
type Fault struct {
	// Addr is the faulting address. It need not be page aligned.
	Addr hostarch.Addr

	// AccessType is the access that faulted.
	AccessType hostarch.AccessType

	// Kind is NotPresent or Protection.
	Kind FaultKind

	// User is true if the access was made by user code.
	User bool
}

// Present returns true if a translation existed for the faulting address.
func (f *Fault) Present() bool {
	return f.Kind == Protection
}

// Error implements error.Error.
func (f *Fault) Error() string {
	origin := "kernel"
	if f.User {
		origin = "user"
	}
	return fmt.Sprintf("%s %s fault at %v (%v)", origin, f.Kind, f.Addr, f.AccessType)
}
