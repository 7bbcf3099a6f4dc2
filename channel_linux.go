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

//go:build linux

package fused

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// pollTimeoutMillis bounds how long Read waits on epoll before trying a
// direct read of the fd anyway. The fd is non-blocking, so that read returns
// at once (EAGAIN sends Read back to epoll). Some unmount paths never
// make the device readable again even though a read would now return
// ENODEV immediately, so a bare epoll_wait with no timeout can wedge the
// reader goroutine past the point the session otherwise would have
// noticed the unmount.
const pollTimeoutMillis = 1000

func newPlatformChannel(dev *os.File) (*Channel, error) {
	fd := int(dev.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("channel: set nonblocking: %w", err)
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("channel: epoll_create1: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("channel: epoll_ctl: %w", err)
	}

	c := newChannel(dev)
	c.epfd = epfd
	return c, nil
}

func (c *Channel) closePlatform() {
	if c.epfd != 0 {
		unix.Close(c.epfd)
	}
}

// Read blocks until a request frame is available and returns it in buf[:n].
// It waits on epoll in pollTimeoutMillis-bounded slices so a read that
// would now fail with ENODEV (the kernel having torn the connection down
// during unmount) is never missed just because epoll never reported the fd
// readable again.
func (c *Channel) Read(buf []byte) (int, error) {
	events := make([]unix.EpollEvent, 1)
	for {
		_, err := unix.EpollWait(c.epfd, events, pollTimeoutMillis)
		if err != nil {
			if errno, ok := rawErrno(err); ok && errno == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("channel: epoll_wait: %w", err)
		}

		n, err := unix.Read(c.fd, buf)
		if err == nil {
			return n, nil
		}
		if errno, ok := rawErrno(err); ok {
			switch errno {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				// epoll said readable, but another reader in the
				// pool beat us to it; go back to waiting.
				continue
			}
		}
		return 0, classifyReadErr(err)
	}
}
