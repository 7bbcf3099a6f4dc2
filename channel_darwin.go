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

//go:build darwin

package fused

import (
	"os"

	"golang.org/x/sys/unix"
)

// macFUSE's device has no analogue of Linux epoll-driven readiness; reads
// simply block in the kernel until a request arrives. The only way to
// unblock a pending read during unmount is to close the descriptor out
// from under it (§9 "macOS blocking reads"), which turns the read(2) into
// EBADF; Read maps that into errDeviceClosed so callers can tell it apart
// from every other I/O failure.
func newPlatformChannel(dev *os.File) (*Channel, error) {
	return newChannel(dev), nil
}

func (c *Channel) closePlatform() {}

// Read blocks until a request frame is available and returns it in buf[:n].
func (c *Channel) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, buf)
		if err == nil {
			return n, nil
		}
		if errno, ok := rawErrno(err); ok {
			switch errno {
			case unix.EINTR:
				continue
			case unix.EBADF:
				return 0, errDeviceClosed
			}
		}
		return 0, classifyReadErr(err)
	}
}
