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
	"fmt"
	"sync"

	"github.com/vanadiumfs/fused/internal/backingioctl"
)

// backingHandle is a reference-counted kernel registration for one host
// file descriptor (§4.8, §9 "Backing-id as shared resource"). The kernel
// id is acquired once per inode no matter how many opens share it; the
// last Release performs the close ioctl.
type backingHandle struct {
	id    uint32
	devFD int

	mu    sync.Mutex
	count int
}

func (h *backingHandle) addRef() {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
}

// release drops one reference, performing the backing-close ioctl exactly
// once when the last reference goes away.
func (h *backingHandle) release() error {
	h.mu.Lock()
	h.count--
	last := h.count == 0
	h.mu.Unlock()
	if !last {
		return nil
	}
	return backingioctl.Close(h.devFD, h.id)
}

// backingRegistry caches backing ids per inode so concurrent opens of the
// same inode share a single kernel registration, and tracks the live set
// by file handle so Release can find the right handle to drop a reference
// from. The by-inode entry is removed once its last strong reference is
// gone, matching the "weak by-inode map, strong by-handle map" design note
// in §9: nothing here keeps an entry alive by itself, only the by-handle
// side does.
type backingRegistry struct {
	devFD int

	mu      sync.Mutex
	byInode map[uint64]*backingHandle
	byFh    map[uint64]*backingHandle
}

func newBackingRegistry(devFD int) *backingRegistry {
	return &backingRegistry{
		devFD:   devFD,
		byInode: make(map[uint64]*backingHandle),
		byFh:    make(map[uint64]*backingHandle),
	}
}

// Open registers hostFd as ino's backing file (reusing an existing
// registration if one is already live for ino) and associates the result
// with fh so a later Release(fh) can find it again.
func (r *backingRegistry) Open(ino, fh uint64, hostFd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byInode[ino]
	if !ok {
		id, err := backingioctl.Open(r.devFD, hostFd)
		if err != nil {
			return fmt.Errorf("backing: open ioctl for inode %d: %w", ino, err)
		}
		h = &backingHandle{id: id, devFD: r.devFD}
		r.byInode[ino] = h
	}
	h.addRef()
	r.byFh[fh] = h
	return nil
}

// Release drops the reference associated with fh, closing the kernel
// registration if this was the last user and forgetting the by-inode entry
// once its handle count hits zero.
func (r *backingRegistry) Release(ino, fh uint64) error {
	r.mu.Lock()
	h, ok := r.byFh[fh]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.byFh, fh)
	r.mu.Unlock()

	err := h.release()

	r.mu.Lock()
	h.mu.Lock()
	empty := h.count == 0
	h.mu.Unlock()
	if empty && r.byInode[ino] == h {
		delete(r.byInode, ino)
	}
	r.mu.Unlock()

	return err
}

// CloseAll releases every outstanding backing id, used when the session
// terminates so that §8's "every acquired backing id gets a matching
// close" invariant holds even for handles the filesystem never explicitly
// released. A handle shared by several file handles is closed once.
func (r *backingRegistry) CloseAll() {
	r.mu.Lock()
	handles := make(map[*backingHandle]struct{}, len(r.byFh))
	for _, h := range r.byFh {
		handles[h] = struct{}{}
	}
	r.byFh = make(map[uint64]*backingHandle)
	r.byInode = make(map[uint64]*backingHandle)
	r.mu.Unlock()

	for h := range handles {
		h.mu.Lock()
		h.count = 1
		h.mu.Unlock()
		h.release()
	}
}
