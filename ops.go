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
	"time"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/buffer"
	"github.com/vanadiumfs/fused/wire"
)

// splitDuration turns a cache-validity duration into the seconds/nsec pair
// every *_valid field pair on the wire expects.
func splitDuration(d time.Duration) (sec uint64, nsec uint32) {
	if d < 0 {
		d = 0
	}
	return uint64(d / time.Second), uint32(d % time.Second)
}

// opBase is embedded by every reply-sink type below. It enforces
// at-most-one resolution (§4.3 step 5): resolved is set by the first call
// to an Error/success method and checked by the dispatcher after the
// filesystem method returns. Because every FileSystem method call is
// synchronous (the dispatcher never stores an op past the call that
// produced it), "dropped without resolution" reduces to "still unresolved
// when the call returns" — there is no finalizer or GC hook involved.
type opBase struct {
	reply    *buffer.Reply
	resolved bool
}

func (b *opBase) errorReply(err error) {
	if b.resolved {
		return
	}
	b.resolved = true
	if err != nil {
		b.reply.SetError(-int32(toErrno(err)))
	}
}

// Resolved reports whether this sink has already been resolved. Used by
// the dispatcher, never by filesystem implementations.
func (b *opBase) Resolved() bool { return b.resolved }

// ErrOp is the reply sink for operations whose only possible outcomes are
// "succeeded with no data" or "failed with an errno" (Unlink, Rmdir, Flush,
// Release, Fsync, Access, SetXAttr, RemoveXAttr, SetLk, Fallocate, ...).
type ErrOp struct{ opBase }

// Error resolves the sink. err == nil means success with an empty body;
// any non-nil error is converted to a negative errno via toErrno.
func (o *ErrOp) Error(err error) { o.errorReply(err) }

// EntryOp is the reply sink for LookUp, Mknod, Mkdir, Symlink, Link: any
// operation that returns a freshly (re)referenced inode.
type EntryOp struct{ opBase }

// Entry resolves the sink with a successful EntryOut.
func (o *EntryOp) Entry(nodeID, generation uint64, attr wire.Attr, entryValid, attrValid time.Duration) {
	if o.resolved {
		return
	}
	o.resolved = true
	ev, evn := splitDuration(entryValid)
	av, avn := splitDuration(attrValid)
	out := wire.EntryOut{
		NodeID:         nodeID,
		Generation:     generation,
		EntryValid:     ev,
		AttrValid:      av,
		EntryValidNsec: evn,
		AttrValidNsec:  avn,
		Attr:           attr,
	}
	buffer.AppendTyped(o.reply, &out)
}

func (o *EntryOp) Error(err error) { o.errorReply(err) }

// AttrOp is the reply sink for GetAttr and SetAttr.
type AttrOp struct{ opBase }

func (o *AttrOp) Attr(attr wire.Attr, attrValid time.Duration) {
	if o.resolved {
		return
	}
	o.resolved = true
	av, avn := splitDuration(attrValid)
	out := wire.AttrOut{AttrValid: av, AttrValidNsec: avn, Attr: attr}
	buffer.AppendTyped(o.reply, &out)
}

func (o *AttrOp) Error(err error) { o.errorReply(err) }

// DataOp is the reply sink for any operation that returns a raw byte span:
// ReadLink, Read, GetXAttr, ListXAttr.
type DataOp struct{ opBase }

func (o *DataOp) Data(b []byte) {
	if o.resolved {
		return
	}
	o.resolved = true
	o.reply.AppendData(b)
}

func (o *DataOp) Error(err error) { o.errorReply(err) }

// WriteOp is the reply sink for Write and CopyFileRange: both report a
// byte count.
type WriteOp struct{ opBase }

func (o *WriteOp) Wrote(n uint32) {
	if o.resolved {
		return
	}
	o.resolved = true
	out := wire.WriteOut{Size: n}
	buffer.AppendTyped(o.reply, &out)
}

func (o *WriteOp) Error(err error) { o.errorReply(err) }

// OpenOp is the reply sink for Open and OpenDir.
type OpenOp struct {
	opBase
	// Backing, if non-nil, names a host file descriptor the filesystem
	// wants registered for kernel-side passthrough I/O (§4.8). The
	// dispatcher performs the backing-open ioctl after Opened is called
	// and before the reply is written, storing the resulting handle under
	// the minted file handle so Release can look it up again.
	Backing *int
	// Handle is the file handle passed to Opened, recorded here so the
	// dispatcher can key the backing-id registration off it without
	// re-parsing the reply body.
	Handle uint64
}

func (o *OpenOp) Opened(handle uint64, flags uint32) {
	if o.resolved {
		return
	}
	o.resolved = true
	o.Handle = handle
	out := wire.OpenOut{Fh: handle, OpenFlags: flags}
	buffer.AppendTyped(o.reply, &out)
}

func (o *OpenOp) Error(err error) { o.errorReply(err) }

// SetPassthrough requests kernel passthrough on the given host fd for this
// open. It must be called before Opened.
func (o *OpenOp) SetPassthrough(hostFd int) { o.Backing = &hostFd }

// DirOp is the reply sink for ReadDir. Builder exposes the directory-entry
// accumulator described in §4.2; the filesystem calls Builder().Add in a
// loop and stops as soon as it returns false, then calls Done.
type DirOp struct {
	opBase
	builder *buffer.DirentBuilder
}

func (o *DirOp) Builder() *buffer.DirentBuilder { return o.builder }

// Done resolves the sink with whatever the builder accumulated so far.
func (o *DirOp) Done() {
	if o.resolved {
		return
	}
	o.resolved = true
	o.reply.AppendData(o.builder.Bytes())
}

func (o *DirOp) Error(err error) { o.errorReply(err) }

// StatfsOp is the reply sink for StatFs.
type StatfsOp struct{ opBase }

func (o *StatfsOp) Statfs(out wire.StatfsOut) {
	if o.resolved {
		return
	}
	o.resolved = true
	buffer.AppendTyped(o.reply, &out)
}

func (o *StatfsOp) Error(err error) { o.errorReply(err) }

// CreateOp is the reply sink for Create: an atomic Mknod+Open.
type CreateOp struct {
	opBase
	Backing *int
	// Handle is the file handle passed to Created, recorded for the same
	// reason as OpenOp.Handle.
	Handle uint64
}

func (o *CreateOp) Created(nodeID, generation uint64, attr wire.Attr, entryValid, attrValid time.Duration, handle uint64, openFlags uint32) {
	if o.resolved {
		return
	}
	o.resolved = true
	o.Handle = handle
	ev, evn := splitDuration(entryValid)
	av, avn := splitDuration(attrValid)
	out := wire.CreateOut{
		Entry: wire.EntryOut{
			NodeID: nodeID, Generation: generation,
			EntryValid: ev, AttrValid: av,
			EntryValidNsec: evn, AttrValidNsec: avn,
			Attr: attr,
		},
		Open: wire.OpenOut{Fh: handle, OpenFlags: openFlags},
	}
	buffer.AppendTyped(o.reply, &out)
}

func (o *CreateOp) Error(err error) { o.errorReply(err) }

// SetPassthrough mirrors OpenOp.SetPassthrough.
func (o *CreateOp) SetPassthrough(hostFd int) { o.Backing = &hostFd }

// LkOp is the reply sink for GetLk.
type LkOp struct{ opBase }

func (o *LkOp) Lock(l wire.FileLock) {
	if o.resolved {
		return
	}
	o.resolved = true
	out := wire.LkOut{Lock: l}
	buffer.AppendTyped(o.reply, &out)
}

func (o *LkOp) Error(err error) { o.errorReply(err) }

// BmapOp is the reply sink for Bmap.
type BmapOp struct{ opBase }

func (o *BmapOp) Block(block uint64) {
	if o.resolved {
		return
	}
	o.resolved = true
	out := wire.BmapOut{Block: block}
	buffer.AppendTyped(o.reply, &out)
}

func (o *BmapOp) Error(err error) { o.errorReply(err) }

// IoctlOp is the reply sink for Ioctl. The core never interprets Cmd/Arg;
// it relays whatever result/output bytes the filesystem produces.
type IoctlOp struct{ opBase }

func (o *IoctlOp) Result(result int32, out []byte) {
	if o.resolved {
		return
	}
	o.resolved = true
	hdr := wire.IoctlOut{Result: result}
	buffer.AppendTyped(o.reply, &hdr)
	o.reply.AppendData(out)
}

func (o *IoctlOp) Error(err error) { o.errorReply(err) }

// PollOp is the reply sink for Poll.
type PollOp struct{ opBase }

func (o *PollOp) Revents(revents uint32) {
	if o.resolved {
		return
	}
	o.resolved = true
	out := wire.PollOut{Revents: revents}
	buffer.AppendTyped(o.reply, &out)
}

func (o *PollOp) Error(err error) { o.errorReply(err) }

// LseekOp is the reply sink for Lseek (SEEK_DATA/SEEK_HOLE passthrough).
type LseekOp struct{ opBase }

func (o *LseekOp) Offset(off uint64) {
	if o.resolved {
		return
	}
	o.resolved = true
	out := wire.LseekOut{Offset: off}
	buffer.AppendTyped(o.reply, &out)
}

func (o *LseekOp) Error(err error) { o.errorReply(err) }

// interruptedErrno is returned by handlers that notice ctx was cancelled by
// an INTERRUPT forward (§4.3, §5 "Cancellation").
const interruptedErrno = unix.EINTR
