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
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/buffer"
	"github.com/vanadiumfs/fused/wire"
)

// sessionState tracks where a session sits in the Created -> Initializing
// -> Running -> Unmounting -> Terminated lifecycle (§4.5). Dispatch itself
// only cares about the Created/Running distinction: everything before the
// first successful INIT must be rejected, everything after is ordinary
// traffic.
type sessionState int32

const (
	stateCreated sessionState = iota
	stateInitializing
	stateRunning
	stateUnmounting
	stateTerminated
)

// Dispatcher turns raw request frames read from the device into calls on a
// FileSystem and produces the corresponding reply frame. It also tracks
// per-request cancellation state so an INTERRUPT frame can cancel a
// still-running handler's context, mirroring the teacher's
// beginOp/finishOp/handleInterrupt trio in connection.go.
type Dispatcher struct {
	fs      FileSystem
	backing *backingRegistry

	mu      sync.Mutex
	state   sessionState
	cancels map[uint64]context.CancelFunc
}

// NewDispatcher creates a Dispatcher in the Created state, before any INIT
// has been seen.
func NewDispatcher(fs FileSystem) *Dispatcher {
	return &Dispatcher{
		fs:      fs,
		cancels: make(map[uint64]context.CancelFunc),
	}
}

// SetBacking attaches the registry used to service SetPassthrough requests
// (§4.8). Sessions call this once, right after constructing both the
// dispatcher and the registry, since the registry needs the device fd the
// dispatcher is built before Mount has opened.
func (d *Dispatcher) SetBacking(r *backingRegistry) {
	d.backing = r
}

func (d *Dispatcher) beginOp(parent context.Context, opcode wire.Opcode, unique uint64) context.Context {
	if opcode == wire.OpForget || opcode == wire.OpBatchForget {
		// No reply is ever sent for these, so their unique ids are
		// immediately eligible for reuse by some kernels; never record
		// cancellation state keyed on them (mirrors the teacher's
		// special case for OpForget in beginOp).
		return parent
	}
	ctx, cancel := context.WithCancel(parent)
	d.mu.Lock()
	d.cancels[unique] = cancel
	d.mu.Unlock()
	return ctx
}

func (d *Dispatcher) finishOp(opcode wire.Opcode, unique uint64) {
	if opcode == wire.OpForget || opcode == wire.OpBatchForget {
		return
	}
	d.mu.Lock()
	cancel, ok := d.cancels[unique]
	if ok {
		delete(d.cancels, unique)
	}
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

// HandleInterrupt cancels the context of the still-outstanding request
// named by in.Unique. If that request has already been replied to (or was
// never dispatched in the first place), the interrupt is silently
// absorbed — there is nothing left to cancel, matching the decision
// recorded in SPEC_FULL.md §9 for INTERRUPT racing ahead of its target.
func (d *Dispatcher) HandleInterrupt(in *wire.InterruptIn) {
	d.mu.Lock()
	cancel, ok := d.cancels[in.Unique]
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

// Dispatch decodes one request frame (everything the channel read, header
// included) and either returns a reply ready to write or nil when the
// opcode expects no reply (FORGET, BATCH_FORGET, INTERRUPT). header is
// re-parsed internally so callers never need to touch wire types directly.
func (d *Dispatcher) Dispatch(parent context.Context, frame []byte) (*buffer.Reply, error) {
	full := buffer.NewCursor(frame)
	hdr, err := buffer.Pull[wire.InHeader](&full)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	cur := buffer.NewCursor(full.Rest())

	d.mu.Lock()
	state := d.state
	d.mu.Unlock()

	if hdr.Opcode != wire.OpInit && state == stateCreated {
		// §4.3: any non-INIT request seen before the handshake
		// completes is a protocol violation; EIO and move on, the
		// kernel will not normally do this.
		reply := buffer.NewReply(hdr.Unique)
		reply.SetError(-int32(unix.EIO))
		return reply, nil
	}

	if hdr.Opcode == wire.OpInterrupt {
		in, err := buffer.Pull[wire.InterruptIn](&cur)
		if err != nil {
			return nil, nil
		}
		d.HandleInterrupt(in)
		return nil, nil
	}

	if hdr.Opcode.NoReply() {
		d.dispatchNoReply(parent, hdr, &cur)
		return nil, nil
	}

	rc := RequestCtx{Uid: hdr.UID, Gid: hdr.GID, Pid: hdr.PID, Unique: hdr.Unique}
	ctx := d.beginOp(parent, hdr.Opcode, hdr.Unique)
	defer d.finishOp(hdr.Opcode, hdr.Unique)

	reply := buffer.NewReply(hdr.Unique)

	if hdr.Opcode == wire.OpInit {
		return d.dispatchInit(ctx, rc, reply, &cur)
	}

	if err := d.dispatchOne(ctx, rc, hdr, &cur, reply); err != nil {
		reply.SetError(-int32(toErrno(err)))
	}
	return reply, nil
}

func (d *Dispatcher) dispatchInit(ctx context.Context, rc RequestCtx, reply *buffer.Reply, cur *buffer.Cursor) (*buffer.Reply, error) {
	in, err := buffer.Pull[wire.InitIn](cur)
	if err != nil {
		reply.SetError(-int32(unix.EIO))
		return reply, nil
	}

	out, ready, err := negotiate(ctx, rc, d.fs, in)
	if err != nil {
		reply.SetError(-int32(toErrno(err)))
		d.mu.Lock()
		d.state = stateTerminated
		d.mu.Unlock()
		return reply, nil
	}

	buffer.AppendTyped(reply, &out)

	d.mu.Lock()
	if ready {
		d.state = stateRunning
	} else {
		d.state = stateCreated
	}
	d.mu.Unlock()

	return reply, nil
}

// dispatchNoReply handles FORGET and BATCH_FORGET: informational only, no
// frame is ever written back for either.
func (d *Dispatcher) dispatchNoReply(parent context.Context, hdr *wire.InHeader, cur *buffer.Cursor) {
	rc := RequestCtx{Uid: hdr.UID, Gid: hdr.GID, Pid: hdr.PID, Unique: hdr.Unique}

	switch hdr.Opcode {
	case wire.OpForget:
		in, err := buffer.Pull[wire.ForgetIn](cur)
		if err != nil {
			return
		}
		d.fs.Forget(parent, rc, hdr.NodeID, in.Nlookup)

	case wire.OpBatchForget:
		in, err := buffer.Pull[wire.BatchForgetIn](cur)
		if err != nil {
			return
		}
		entries, err := buffer.PullSlice[wire.ForgetOne](cur, int(in.Count))
		if err != nil {
			return
		}
		for _, f := range entries {
			d.fs.Forget(parent, rc, f.NodeID, f.Nlookup)
		}
	}
}

// dispatchOne decodes and executes every opcode besides INIT/FORGET/
// BATCH_FORGET/INTERRUPT, filling reply via the XxxOp sink types in ops.go.
// Decode errors (short payload) are never fatal to the session: they become
// an EIO reply for this one request, per the "decoder rejects malformed
// payload" handling in §7.
func (d *Dispatcher) dispatchOne(ctx context.Context, rc RequestCtx, hdr *wire.InHeader, cur *buffer.Cursor, reply *buffer.Reply) error {
	fs := d.fs

	switch hdr.Opcode {
	case wire.OpLookup:
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &EntryOp{opBase: opBase{reply: reply}}
		fs.LookUp(ctx, rc, hdr.NodeID, name, op)
		return finish(op, reply)

	case wire.OpGetattr:
		in, err := buffer.Pull[wire.GetattrIn](cur)
		if err != nil {
			return err
		}
		op := &AttrOp{opBase: opBase{reply: reply}}
		fs.GetAttr(ctx, rc, hdr.NodeID, in.Fh, in.GetattrFlags&wire.GetattrFlagsFh != 0, op)
		return finish(op, reply)

	case wire.OpSetattr:
		in, err := buffer.Pull[wire.SetattrIn](cur)
		if err != nil {
			return err
		}
		op := &AttrOp{opBase: opBase{reply: reply}}
		fs.SetAttr(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpReadlink:
		op := &DataOp{opBase: opBase{reply: reply}}
		fs.ReadLink(ctx, rc, hdr.NodeID, op)
		return finish(op, reply)

	case wire.OpMknod:
		in, err := buffer.Pull[wire.MknodIn](cur)
		if err != nil {
			return err
		}
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &EntryOp{opBase: opBase{reply: reply}}
		fs.Mknod(ctx, rc, hdr.NodeID, name, in, op)
		return finish(op, reply)

	case wire.OpMkdir:
		in, err := buffer.Pull[wire.MkdirIn](cur)
		if err != nil {
			return err
		}
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &EntryOp{opBase: opBase{reply: reply}}
		fs.Mkdir(ctx, rc, hdr.NodeID, name, in, op)
		return finish(op, reply)

	case wire.OpUnlink:
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Unlink(ctx, rc, hdr.NodeID, name, op)
		return finish(op, reply)

	case wire.OpRmdir:
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Rmdir(ctx, rc, hdr.NodeID, name, op)
		return finish(op, reply)

	case wire.OpSymlink:
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		target, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &EntryOp{opBase: opBase{reply: reply}}
		fs.Symlink(ctx, rc, hdr.NodeID, name, target, op)
		return finish(op, reply)

	case wire.OpRename:
		in, err := buffer.Pull[wire.RenameIn](cur)
		if err != nil {
			return err
		}
		oldName, err := cur.PullString()
		if err != nil {
			return err
		}
		newName, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Rename(ctx, rc, hdr.NodeID, oldName, in.Newdir, newName, 0, op)
		return finish(op, reply)

	case wire.OpRename2:
		in, err := buffer.Pull[wire.Rename2In](cur)
		if err != nil {
			return err
		}
		oldName, err := cur.PullString()
		if err != nil {
			return err
		}
		newName, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Rename(ctx, rc, hdr.NodeID, oldName, in.Newdir, newName, in.Flags, op)
		return finish(op, reply)

	case wire.OpLink:
		in, err := buffer.Pull[wire.LinkIn](cur)
		if err != nil {
			return err
		}
		newName, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &EntryOp{opBase: opBase{reply: reply}}
		fs.Link(ctx, rc, in.Oldnodeid, hdr.NodeID, newName, op)
		return finish(op, reply)

	case wire.OpOpen:
		in, err := buffer.Pull[wire.OpenIn](cur)
		if err != nil {
			return err
		}
		op := &OpenOp{opBase: opBase{reply: reply}}
		fs.Open(ctx, rc, hdr.NodeID, in, op)
		if op.Resolved() && op.Backing != nil {
			if err := d.registerBacking(hdr.NodeID, op.Handle, *op.Backing); err != nil {
				reply.SetError(-int32(toErrno(err)))
				return nil
			}
		}
		return finish(op, reply)

	case wire.OpRead:
		in, err := buffer.Pull[wire.ReadIn](cur)
		if err != nil {
			return err
		}
		op := &DataOp{opBase: opBase{reply: reply}}
		fs.Read(ctx, rc, hdr.NodeID, in.Fh, int64(in.Offset), in.Size, op)
		return finish(op, reply)

	case wire.OpWrite:
		in, err := buffer.Pull[wire.WriteIn](cur)
		if err != nil {
			return err
		}
		data, err := cur.PullBytes(int(in.Size))
		if err != nil {
			return err
		}
		op := &WriteOp{opBase: opBase{reply: reply}}
		fs.Write(ctx, rc, hdr.NodeID, in.Fh, int64(in.Offset), data, in, op)
		return finish(op, reply)

	case wire.OpFlush:
		in, err := buffer.Pull[wire.FlushIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Flush(ctx, rc, hdr.NodeID, in.Fh, in.LockOwner, op)
		return finish(op, reply)

	case wire.OpRelease:
		in, err := buffer.Pull[wire.ReleaseIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Release(ctx, rc, hdr.NodeID, in.Fh, in, op)
		d.unregisterBacking(hdr.NodeID, in.Fh)
		return finish(op, reply)

	case wire.OpFsync:
		in, err := buffer.Pull[wire.FsyncIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Fsync(ctx, rc, hdr.NodeID, in.Fh, in.FsyncFlags&wire.FsyncFdatasync != 0, op)
		return finish(op, reply)

	case wire.OpOpendir:
		in, err := buffer.Pull[wire.OpenIn](cur)
		if err != nil {
			return err
		}
		op := &OpenOp{opBase: opBase{reply: reply}}
		fs.OpenDir(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpReaddir, wire.OpReaddirplus:
		in, err := buffer.Pull[wire.ReadIn](cur)
		if err != nil {
			return err
		}
		op := &DirOp{opBase: opBase{reply: reply}, builder: buffer.NewDirentBuilder(int(in.Size))}
		fs.ReadDir(ctx, rc, hdr.NodeID, in.Fh, in.Offset, op)
		return finish(op, reply)

	case wire.OpReleasedir:
		in, err := buffer.Pull[wire.ReleaseIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.ReleaseDir(ctx, rc, hdr.NodeID, in.Fh, op)
		d.unregisterBacking(hdr.NodeID, in.Fh)
		return finish(op, reply)

	case wire.OpFsyncdir:
		in, err := buffer.Pull[wire.FsyncIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.FsyncDir(ctx, rc, hdr.NodeID, in.Fh, in.FsyncFlags&wire.FsyncFdatasync != 0, op)
		return finish(op, reply)

	case wire.OpStatfs:
		op := &StatfsOp{opBase: opBase{reply: reply}}
		fs.StatFs(ctx, rc, hdr.NodeID, op)
		return finish(op, reply)

	case wire.OpSetxattr:
		in, err := buffer.Pull[wire.SetxattrIn](cur)
		if err != nil {
			return err
		}
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		value, err := cur.PullBytes(int(in.Size))
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.SetXAttr(ctx, rc, hdr.NodeID, name, value, in.Flags, op)
		return finish(op, reply)

	case wire.OpGetxattr:
		in, err := buffer.Pull[wire.GetxattrIn](cur)
		if err != nil {
			return err
		}
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &DataOp{opBase: opBase{reply: reply}}
		fs.GetXAttr(ctx, rc, hdr.NodeID, name, in.Size, op)
		return finish(op, reply)

	case wire.OpListxattr:
		in, err := buffer.Pull[wire.GetxattrIn](cur)
		if err != nil {
			return err
		}
		op := &DataOp{opBase: opBase{reply: reply}}
		fs.ListXAttr(ctx, rc, hdr.NodeID, in.Size, op)
		return finish(op, reply)

	case wire.OpRemovexattr:
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.RemoveXAttr(ctx, rc, hdr.NodeID, name, op)
		return finish(op, reply)

	case wire.OpAccess:
		in, err := buffer.Pull[wire.AccessIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Access(ctx, rc, hdr.NodeID, in.Mask, op)
		return finish(op, reply)

	case wire.OpCreate:
		in, err := buffer.Pull[wire.CreateIn](cur)
		if err != nil {
			return err
		}
		name, err := cur.PullString()
		if err != nil {
			return err
		}
		op := &CreateOp{opBase: opBase{reply: reply}}
		fs.Create(ctx, rc, hdr.NodeID, name, in, op)
		if op.Resolved() && op.Backing != nil {
			if err := d.registerBacking(hdr.NodeID, op.Handle, *op.Backing); err != nil {
				reply.SetError(-int32(toErrno(err)))
				return nil
			}
		}
		return finish(op, reply)

	case wire.OpGetlk:
		in, err := buffer.Pull[wire.LkIn](cur)
		if err != nil {
			return err
		}
		op := &LkOp{opBase: opBase{reply: reply}}
		fs.GetLk(ctx, rc, hdr.NodeID, in.Fh, in, op)
		return finish(op, reply)

	case wire.OpSetlk, wire.OpSetlkw:
		in, err := buffer.Pull[wire.LkIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.SetLk(ctx, rc, hdr.NodeID, in.Fh, in, hdr.Opcode == wire.OpSetlkw, op)
		return finish(op, reply)

	case wire.OpBmap:
		in, err := buffer.Pull[wire.BmapIn](cur)
		if err != nil {
			return err
		}
		op := &BmapOp{opBase: opBase{reply: reply}}
		fs.Bmap(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpIoctl:
		in, err := buffer.Pull[wire.IoctlIn](cur)
		if err != nil {
			return err
		}
		inputBuf, err := cur.PullBytes(int(in.InSize))
		if err != nil {
			return err
		}
		op := &IoctlOp{opBase: opBase{reply: reply}}
		fs.Ioctl(ctx, rc, hdr.NodeID, in, inputBuf, op)
		return finish(op, reply)

	case wire.OpPoll:
		in, err := buffer.Pull[wire.PollIn](cur)
		if err != nil {
			return err
		}
		op := &PollOp{opBase: opBase{reply: reply}}
		fs.Poll(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpFallocate:
		in, err := buffer.Pull[wire.FallocateIn](cur)
		if err != nil {
			return err
		}
		op := &ErrOp{opBase: opBase{reply: reply}}
		fs.Fallocate(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpLseek:
		in, err := buffer.Pull[wire.LseekIn](cur)
		if err != nil {
			return err
		}
		op := &LseekOp{opBase: opBase{reply: reply}}
		fs.Lseek(ctx, rc, hdr.NodeID, in, op)
		return finish(op, reply)

	case wire.OpCopyFileRng:
		in, err := buffer.Pull[wire.CopyFileRangeIn](cur)
		if err != nil {
			return err
		}
		op := &WriteOp{opBase: opBase{reply: reply}}
		fs.CopyFileRange(ctx, rc, in, op)
		return finish(op, reply)

	case wire.OpDestroy:
		fs.Destroy(ctx, rc)
		reply.Empty()
		return nil

	default:
		return unix.ENOSYS
	}
}

// registerBacking performs the backing-open ioctl for a handle that asked
// for passthrough via SetPassthrough. A dispatcher with no registry attached
// (backing ids are a Linux-only extension) rejects the request with ENOSYS
// rather than silently ignoring it, since the filesystem explicitly asked
// for passthrough and the kernel reply must say whether it got it.
func (d *Dispatcher) registerBacking(ino, fh uint64, hostFd int) error {
	if d.backing == nil {
		return unix.ENOSYS
	}
	return d.backing.Open(ino, fh, hostFd)
}

// unregisterBacking drops the backing-id reference for fh, if any was ever
// registered. It is always safe to call unconditionally on Release /
// ReleaseDir: backingRegistry.Release is a no-op for handles it never saw.
func (d *Dispatcher) unregisterBacking(ino, fh uint64) {
	if d.backing == nil {
		return
	}
	d.backing.Release(ino, fh)
}

// finish implements §4.3 step 7: if the handler returned without calling
// any resolving method on its op, the dispatcher replies EIO on its
// behalf rather than leaving the kernel waiting forever.
func finish(resolvable interface{ Resolved() bool }, reply *buffer.Reply) error {
	if !resolvable.Resolved() {
		reply.SetError(-int32(unix.EIO))
	}
	return nil
}
