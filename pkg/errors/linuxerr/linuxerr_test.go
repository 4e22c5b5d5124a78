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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestEquals(t *testing.T) {
	wrapped := fmt.Errorf("swap out 0x1000: %w", ENOSPC)
	if !Equals(ENOSPC, wrapped) {
		t.Errorf("Equals(ENOSPC, %v) got false want true", wrapped)
	}
	if Equals(ENOMEM, wrapped) {
		t.Errorf("Equals(ENOMEM, %v) got true want false", wrapped)
	}
	if Equals(EFAULT, fmt.Errorf("plain")) {
		t.Errorf("Equals(EFAULT, plain) got true want false")
	}
	if !Equals(nil, nil) {
		t.Errorf("Equals(nil, nil) got false want true")
	}
}

func TestToUnix(t *testing.T) {
	if got, ok := ToUnix(fmt.Errorf("mmap: %w", EINVAL)); !ok || got != unix.EINVAL {
		t.Errorf("ToUnix got (%v, %t) want (%v, true)", got, ok, unix.EINVAL)
	}
	if _, ok := ToUnix(fmt.Errorf("other")); ok {
		t.Errorf("ToUnix of a foreign error got ok")
	}
}
