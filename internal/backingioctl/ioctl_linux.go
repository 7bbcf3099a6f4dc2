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

// Package backingioctl wraps the two ioctls that register and release a
// host file descriptor for kernel-side passthrough I/O on a FUSE inode
// (§4.8). Neither retrieved Go repo implements this; it postdates both, so
// the constants and struct layout here are ported directly from the
// original project's ll/ioctl.rs.
package backingioctl

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	magic        = 229
	nrBackingOpen  = 1
	nrBackingClose = 2
	nrDevClone     = 0

	iocWrite    = 1
	iocRead     = 2
	nrShift     = 0
	typeShift   = 8
	sizeShift   = 16
	dirShift    = 30
)

func iow(nr, size uintptr) uintptr {
	return (iocWrite << dirShift) | (magic << typeShift) | (nr << nrShift) | (size << sizeShift)
}

func ior(nr, size uintptr) uintptr {
	return (iocRead << dirShift) | (magic << typeShift) | (nr << nrShift) | (size << sizeShift)
}

// backingMapOut mirrors struct fuse_backing_map_out: the host fd to
// register plus a reserved flags/padding pair the kernel ignores today.
type backingMapOut struct {
	Fd      uint32
	Flags   uint32
	Padding uint64
}

var (
	reqBackingOpen  = iow(nrBackingOpen, unsafe.Sizeof(backingMapOut{}))
	reqBackingClose = iow(nrBackingClose, unsafe.Sizeof(uint32(0)))
	reqDevClone     = ior(nrDevClone, unsafe.Sizeof(uint32(0)))
)

// Open registers hostFd as a backing file for devFD (the open /dev/fuse
// descriptor) and returns the kernel-assigned backing id. The ioctl's own
// return value carries the id, not an out-parameter.
func Open(devFD int, hostFd int) (uint32, error) {
	m := backingMapOut{Fd: uint32(hostFd)}
	id, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(devFD), reqBackingOpen, uintptr(unsafe.Pointer(&m)))
	if errno != 0 {
		return 0, fmt.Errorf("backingioctl: open: %w", errno)
	}
	return uint32(id), nil
}

// Close deregisters a previously opened backing id.
func Close(devFD int, id uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(devFD), reqBackingClose, uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return fmt.Errorf("backingioctl: close: %w", errno)
	}
	return nil
}

// Clone points newFD, a freshly opened /dev/fuse descriptor, at the same
// kernel connection as masterFD, so a worker reading from newFD sees frames
// from the same mount without contending with readers on masterFD (§4.6's
// cloned-FD worker mode).
func Clone(newFD int, masterFD int) error {
	id := uint32(masterFD)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(newFD), reqDevClone, uintptr(unsafe.Pointer(&id)))
	if errno != 0 {
		return fmt.Errorf("backingioctl: clone: %w", errno)
	}
	return nil
}
