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
	"errors"
	"fmt"

	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/errors/linuxerr"
	"gvisor.dev/vmcore/pkg/hostarch"
	"gvisor.dev/vmcore/pkg/sentry/platform"
)

// errNoPage is returned by claimFault when the address is not in the SPT.
var errNoPage = errors.New("no page at address")

// HandleUserFault handles a page fault taken by an access to user memory.
// sp is the user stack pointer at the time of the fault; for faults taken
// inside a system call it must be the stack pointer saved at system call
// entry.
//
// A nil return means the access may be retried. Any error is fatal to the
// faulting process.
func (mm *MemoryManager) HandleUserFault(ctx context.Context, f platform.Fault, sp hostarch.Addr) error {
	pageFaults.Increment()
	if f.Addr >= mm.layout.KernelBase {
		return fmt.Errorf("%v: kernel address: %w", &f, linuxerr.EFAULT)
	}
	if f.Present() {
		return fmt.Errorf("%v: %w", &f, linuxerr.EFAULT)
	}

	err := mm.claimFault(ctx, f.Addr)
	if err == nil || !errors.Is(err, errNoPage) {
		return err
	}
	if !mm.canGrowStack(f.Addr, sp) {
		return fmt.Errorf("%v: no mapping (sp %v): %w", &f, sp, linuxerr.EFAULT)
	}
	if err := mm.growStack(ctx, f.Addr); err != nil {
		return fmt.Errorf("%v: growing stack: %w", &f, err)
	}
	stackGrowths.Increment()
	return nil
}

// claimFault claims the page containing va. It returns errNoPage if there
// is none.
func (mm *MemoryManager) claimFault(ctx context.Context, va hostarch.Addr) error {
	p := mm.Find(va)
	if p == nil {
		return errNoPage
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead() {
		// Removed concurrently.
		return errNoPage
	}
	return mm.claimLocked(ctx, p, nil)
}

// canGrowStack returns true if a fault at va may be satisfied by growing the
// stack: va lies at most one page below sp, and within the maximum stack
// span below the stack top.
func (mm *MemoryManager) canGrowStack(va, sp hostarch.Addr) bool {
	if va < mm.layout.StackLimit() || va >= mm.layout.StackTop {
		return false
	}
	return sp < hostarch.PageSize || va >= sp-hostarch.PageSize
}

// growStack extends the stack down to the page containing va and claims
// that page. Pages between the old bottom and va are allocated but left to
// be materialized on first touch.
func (mm *MemoryManager) growStack(ctx context.Context, va hostarch.Addr) error {
	target := va.RoundDown()
	mm.mu.Lock()
	end := max(mm.stackBottom, target+hostarch.PageSize)
	for addr := target; addr < end; addr += hostarch.PageSize {
		p := mm.newPage(addr, true, MarkerStack, newUninitPage(Anon, nil, Segment{}))
		if err := mm.insertPageLocked(p); err != nil && !linuxerr.Equals(linuxerr.EEXIST, err) {
			mm.mu.Unlock()
			return err
		}
	}
	if target < mm.stackBottom {
		mm.stackBottom = target
	}
	mm.mu.Unlock()
	ctx.Debugf("Grew stack to %v", target)

	if err := mm.claimFault(ctx, target); err != nil {
		if errors.Is(err, errNoPage) {
			return linuxerr.EFAULT
		}
		return err
	}
	return nil
}

// SetupStack allocates and claims the top page of the user stack. It
// returns the initial stack pointer.
func (mm *MemoryManager) SetupStack(ctx context.Context) (hostarch.Addr, error) {
	va := mm.layout.StackTop - hostarch.PageSize
	if err := mm.allocPage(ctx, Anon, va, true, MarkerStack, nil, Segment{}); err != nil {
		return 0, err
	}
	mm.mu.Lock()
	if va < mm.stackBottom {
		mm.stackBottom = va
	}
	mm.mu.Unlock()
	if err := mm.ClaimPage(ctx, va); err != nil {
		return 0, err
	}
	return mm.layout.StackTop, nil
}
