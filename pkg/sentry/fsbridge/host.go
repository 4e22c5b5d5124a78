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

package fsbridge

import (
	"os"
)

// HostFile is a File backed by a host file.
type HostFile struct {
	*os.File
	flag int
}

var _ File = (*HostFile)(nil)

// OpenHostFile opens path with the given os.OpenFile flags.
func OpenHostFile(path string, flag int) (*HostFile, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return &HostFile{File: f, flag: flag &^ (os.O_CREATE | os.O_EXCL | os.O_TRUNC)}, nil
}

// Length implements File.Length.
func (f *HostFile) Length() (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Reopen implements File.Reopen by opening the same path again.
func (f *HostFile) Reopen() (File, error) {
	nf, err := OpenHostFile(f.File.Name(), f.flag)
	if err != nil {
		return nil, err
	}
	return nf, nil
}
