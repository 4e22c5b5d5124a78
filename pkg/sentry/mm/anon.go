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
	"gvisor.dev/vmcore/pkg/context"
	"gvisor.dev/vmcore/pkg/sentry/swap"
)

// anonPage is a page backed by swap. It holds a swap slot exactly while it
// is not resident.
type anonPage struct {
	slot    swap.Slot
	swapped bool
}

func (*anonPage) typ() PageType {
	return Anon
}

func (a *anonPage) swapIn(ctx context.Context, p *Page, frame []byte) error {
	if !a.swapped {
		clear(frame)
		return nil
	}
	if err := p.mm.frames.swap.SwapIn(a.slot, frame); err != nil {
		return err
	}
	ctx.Debugf("Swapped in %v from slot %d", p, a.slot)
	a.swapped = false
	return nil
}

func (a *anonPage) swapOut(ctx context.Context, p *Page, frame []byte, _ bool) error {
	slot, err := p.mm.frames.swap.SwapOut(frame)
	if err != nil {
		return err
	}
	ctx.Debugf("Swapped out %v to slot %d", p, slot)
	a.slot = slot
	a.swapped = true
	return nil
}

func (a *anonPage) destroy(p *Page) {
	if a.swapped {
		p.mm.frames.swap.Free(a.slot)
		a.swapped = false
	}
}
