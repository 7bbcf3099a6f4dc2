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
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/internal/backingioctl"
)

// errDeviceClosed is returned by Channel.Read once the device has been
// closed out from under a blocked reader (the unmount path on platforms
// with no other way to interrupt a pending read).
var errDeviceClosed = errors.New("fused: device closed")

// Channel wraps the open /dev/fuse descriptor. Reading a request and
// writing a reply share no buffer state: replies are written directly via
// buffer.Reply.Write, so Channel itself only needs to hand back inbound
// frames and know how to unblock a pending read on shutdown.
//
// Platform differences live in channel_linux.go and channel_darwin.go: the
// read strategy (non-blocking + epoll with a bounded periodic retry on
// Linux, vs. a plain blocking read unblocked only by closing the FD on
// Darwin) has no common implementation worth factoring out, grounded on
// the original project's dev_fuse.rs + io_ops/nonblocking_io.rs.
type Channel struct {
	dev *os.File
	fd  int

	// epfd is the Linux epoll instance watching fd; unused (zero) on
	// other platforms.
	epfd int
}

func newChannel(dev *os.File) *Channel {
	return &Channel{dev: dev, fd: int(dev.Fd())}
}

// OpenDevFuse opens the FUSE device fd handed back by the mount
// collaborator's Acquire and wraps it in a platform-appropriate Channel.
func OpenDevFuse(fd int) (*Channel, error) {
	dev := os.NewFile(uintptr(fd), "/dev/fuse")
	return newPlatformChannel(dev)
}

// FD returns the raw device descriptor, used by the reply encoder and the
// backing-id ioctls.
func (c *Channel) FD() int { return c.fd }

// OpenClonedDevFuse opens a fresh /dev/fuse descriptor and clones it onto
// the same kernel connection as masterFD via FUSE_DEV_IOC_CLONE, giving a
// pool worker a dedicated fd to read from instead of contending with every
// other worker on masterFD (§4.6's cloned-FD worker mode). Linux only; on
// other platforms the clone ioctl always fails with ENOTSUP.
func OpenClonedDevFuse(masterFD int) (*Channel, error) {
	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open /dev/fuse for clone: %w", err)
	}
	if err := backingioctl.Clone(int(dev.Fd()), masterFD); err != nil {
		dev.Close()
		return nil, fmt.Errorf("channel: clone onto fd %d: %w", masterFD, err)
	}
	return newPlatformChannel(dev)
}

// Close releases the device. Any goroutine blocked in Read returns
// errDeviceClosed (Darwin) or io.EOF/ENODEV (Linux, once the kernel itself
// tears the connection down).
func (c *Channel) Close() error {
	c.closePlatform()
	return c.dev.Close()
}

// rawErrno extracts the unix.Errno underlying a read(2)/write(2) failure,
// whether it arrived bare or wrapped in an *os.PathError.
func rawErrno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	if pe, ok := err.(*os.PathError); ok {
		if e, ok := pe.Err.(unix.Errno); ok {
			return e, true
		}
	}
	return 0, false
}

// classifyReadErr maps a raw read(2) failure on /dev/fuse to the sentinel
// the session loop understands: ENODEV means the kernel hung up, which is
// reported as a clean EOF rather than an error.
func classifyReadErr(err error) error {
	if errno, ok := rawErrno(err); ok && errno == unix.ENODEV {
		return io.EOF
	}
	return err
}
