// Copyright 2015 Google Inc. All Rights Reserved.
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

package fused

import (
	"errors"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// errnoDiag is the process-wide, lazily populated errno-to-message table
// used for diagnostic logging only (SPEC_FULL.md §9 "Global errno/locale
// mapping"). It is created on first access and never destroyed; lookups
// are the common case and insertion happens at most once per distinct
// errno value ever seen by this process, so a RWMutex-guarded map is a
// reasonable read-mostly structure without needing a concurrent map type.
var errnoDiag = struct {
	mu    sync.RWMutex
	cache map[unix.Errno]string
}{cache: make(map[unix.Errno]string)}

// diagMessage returns a human-readable diagnostic message for errno,
// suitable for log lines. It is never used to decide protocol behavior,
// only to make error logs readable.
func diagMessage(errno unix.Errno) string {
	errnoDiag.mu.RLock()
	msg, ok := errnoDiag.cache[errno]
	errnoDiag.mu.RUnlock()
	if ok {
		return msg
	}

	msg = errno.Error()

	errnoDiag.mu.Lock()
	errnoDiag.cache[errno] = msg
	errnoDiag.mu.Unlock()
	return msg
}

// toErrno coerces an arbitrary error returned by a filesystem handler into
// a wire errno. A plain syscall.Errno (the type every os.*Error wraps, e.g.
// the result of os.Open against a host filesystem) is
// accepted alongside unix.Errno since the two share a representation but
// are distinct named types; anything else is reported as EIO, matching the
// "malformed payload" / "decoder rejects" handling named in §7.
func toErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var u unix.Errno
	if errors.As(err, &u) {
		return u
	}
	var s syscall.Errno
	if errors.As(err, &s) {
		return unix.Errno(s)
	}
	return unix.EIO
}
