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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"gvisor.dev/vmcore/pkg/errors/linuxerr"
)

func testFile(t *testing.T, f File) {
	t.Helper()
	if _, err := f.WriteAt([]byte("hello"), 2); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if n, err := f.Length(); err != nil || n != 7 {
		t.Errorf("Length got (%d, %v) want (7, nil)", n, err)
	}

	r, err := f.Reopen()
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	buf := make([]byte, 10)
	n, err := r.ReadAt(buf, 0)
	if err != io.EOF || n != 7 {
		t.Errorf("ReadAt got (%d, %v) want (7, EOF)", n, err)
	}
	if want := []byte("\x00\x00hello"); !bytes.Equal(buf[:n], want) {
		t.Errorf("ReadAt got %q want %q", buf[:n], want)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close of reopened handle failed: %v", err)
	}
}

func TestMemFile(t *testing.T) {
	testFile(t, NewMemFile("mem", nil))
}

func TestMemFileClosed(t *testing.T) {
	f := NewMemFile("mem", []byte("x"))
	f.Close()
	if _, err := f.ReadAt(make([]byte, 1), 0); !linuxerr.Equals(linuxerr.EBADF, err) {
		t.Errorf("ReadAt on closed file got err %v want EBADF", err)
	}
	if err := f.Close(); !linuxerr.Equals(linuxerr.EBADF, err) {
		t.Errorf("second Close got err %v want EBADF", err)
	}
}

func TestHostFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	f, err := OpenHostFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		t.Fatalf("OpenHostFile failed: %v", err)
	}
	testFile(t, f)
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if want := []byte("\x00\x00hello"); !bytes.Equal(got, want) {
		t.Errorf("file content got %q want %q", got, want)
	}
}
