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

// Package fsbridge provides the file interface the memory manager uses for
// file-backed mappings and segment loading.
package fsbridge

import (
	"io"
)

// File is an open file with byte-range semantics.
type File interface {
	io.ReaderAt
	io.WriterAt

	// Length returns the current size of the file in bytes.
	Length() (int64, error)

	// Reopen returns a new, independent handle on the same file. Closing
	// either handle does not affect the other.
	Reopen() (File, error)

	// Close releases the handle.
	Close() error

	// Name returns a name for the file, used in logs.
	Name() string
}
