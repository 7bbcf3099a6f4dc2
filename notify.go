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

	"github.com/vanadiumfs/fused/buffer"
	"github.com/vanadiumfs/fused/wire"
)

// Notifier lets a filesystem push cache changes into the kernel without
// waiting for a request: invalidate a cached inode's attributes and data
// range, invalidate one directory entry, or store bytes directly into the
// kernel's page cache for an inode (§4.7). Every call assembles a
// fabricated frame with unique id zero, exactly like an ordinary reply
// except that no request ever asked for it.
//
// A Notifier is obtained from a running Session and remains valid until the
// session's channel is closed; calling any method after that returns an
// error instead of writing to a closed descriptor.
type Notifier struct {
	mu      sync.Mutex
	channel *Channel
	closed  bool
}

// NewNotifier wraps a session's channel for out-of-band kernel
// notifications. Callers normally obtain one from Session rather than
// constructing it directly.
func NewNotifier(ch *Channel) *Notifier {
	return &Notifier{channel: ch}
}

// closeNotifier marks the notifier closed; called when the session's
// channel goes away so a notification racing with unmount fails cleanly
// instead of writing to a stale fd.
func (n *Notifier) closeNotifier() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

func (n *Notifier) write(code wire.NotifyCode, bodies ...[]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("fused: notifier closed")
	}

	reply := buffer.NewReply(0)
	reply.SetError(int32(code))
	for _, b := range bodies {
		reply.AppendData(b)
	}
	if err := reply.Write(n.channel.FD()); err != nil {
		return fmt.Errorf("fused: notify: %w", err)
	}
	return nil
}

// InvalidateInode asks the kernel to drop its cached attributes for ino
// and, if length is non-negative, the cached data in [off, off+length).
// A negative length invalidates the entire cached range.
func (n *Notifier) InvalidateInode(ino uint64, off, length int64) error {
	out := wire.NotifyInvalInodeOut{Ino: ino, Off: off, Length: length}
	return n.write(wire.NotifyInvalInode, buffer.TypedBytes(&out))
}

// InvalidateEntry asks the kernel to drop name from parent's directory
// cache, so the next lookup goes back to the filesystem instead of
// resolving from cache.
func (n *Notifier) InvalidateEntry(parent uint64, name []byte) error {
	out := wire.NotifyInvalEntryOut{Parent: parent, Namelen: uint32(len(name))}
	namez := append(append([]byte(nil), name...), 0)
	return n.write(wire.NotifyInvalEntry, buffer.TypedBytes(&out), namez)
}

// Store pushes data into the kernel's page cache for ino starting at
// offset, so subsequent reads in that range are served from cache without
// calling back into the filesystem.
func (n *Notifier) Store(ino uint64, offset uint64, data []byte) error {
	out := wire.NotifyStoreOut{Ino: ino, Offset: offset, Size: uint32(len(data))}
	return n.write(wire.NotifyStore, buffer.TypedBytes(&out), data)
}
