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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	"errors"

	"golang.org/x/sys/unix"
	vmerrors "gvisor.dev/vmcore/pkg/errors"
)

// The following errors are semantically identical to unix.Errno values.
// However, since the types are distinct (these are *errors.Error), they are
// not directly comparable. The Errno method returns the errno number so they
// can be compared with unix.Errno (e.g. EFAULT.Errno() == unix.EFAULT).
var (
	ENOENT = vmerrors.New(unix.ENOENT, "no such file or directory")
	ESRCH  = vmerrors.New(unix.ESRCH, "no such process")
	ECHILD = vmerrors.New(unix.ECHILD, "no child processes")
	EIO    = vmerrors.New(unix.EIO, "I/O error")
	EBADF  = vmerrors.New(unix.EBADF, "bad file number")
	ENOMEM = vmerrors.New(unix.ENOMEM, "out of memory")
	EACCES = vmerrors.New(unix.EACCES, "permission denied")
	EFAULT = vmerrors.New(unix.EFAULT, "bad address")
	EEXIST = vmerrors.New(unix.EEXIST, "file exists")
	EINVAL = vmerrors.New(unix.EINVAL, "invalid argument")
	ENOSPC = vmerrors.New(unix.ENOSPC, "no space left on device")
)

// Equals compares a linuxerr to a given error. It unwraps err, so wrapped
// errors compare equal to the linuxerr they wrap.
func Equals(e *vmerrors.Error, err error) bool {
	if err == nil {
		return e == nil
	}
	var target *vmerrors.Error
	if errors.As(err, &target) {
		return target == e
	}
	return false
}

// ToUnix converts err to a unix.Errno. ok is false if err does not wrap an
// *errors.Error.
func ToUnix(err error) (unix.Errno, bool) {
	var target *vmerrors.Error
	if errors.As(err, &target) {
		return target.Errno(), true
	}
	return 0, false
}
