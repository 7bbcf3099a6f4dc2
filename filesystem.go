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

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/wire"
)

// RequestCtx carries the per-request metadata every filesystem method
// receives alongside its opcode-specific typed arguments: the calling
// process's uid/gid/pid and the kernel's unique request id.
type RequestCtx struct {
	Uid    uint32
	Gid    uint32
	Pid    uint32
	Unique uint64
}

// FileSystem is the collaborator the user implements. Every method
// corresponds to one FUSE opcode; every method has a default (via
// UnimplementedFileSystem) that replies ENOSYS, so a concrete filesystem
// need only embed UnimplementedFileSystem and override what it supports.
//
// Methods are called synchronously, on whichever worker goroutine read the
// request; a method may block for as long as it needs to (that's why the
// pool exists) but must eventually resolve exactly once, by calling
// exactly one method on the op argument it was handed ("reply" here means
// one of EntryOut/AttrOut/etc. success helpers, or Error).
type FileSystem interface {
	// Init is called once, before any other method, with the negotiated
	// KernelConfig the dispatcher built from intersecting the kernel's
	// proposal with DefaultFlags. The implementation may drop bits with
	// DisableCapability, add back only bits the kernel offered with
	// EnableCapability, and adjust the limits through the other setters.
	// Returning an error aborts the handshake and terminates the session
	// before it ever reaches Running.
	Init(ctx context.Context, rc RequestCtx, kc *KernelConfig) error

	// Destroy is called once, when the kernel sends DESTROY. No further
	// method is called afterward. There is no reply to resolve.
	Destroy(ctx context.Context, rc RequestCtx)

	// LookUp resolves name within the directory identified by parent,
	// returning its inode and cached-attribute expiry. A successful LookUp
	// gives the kernel an extra lookup reference on the returned inode,
	// later released via Forget; the filesystem is responsible for its own
	// reference bookkeeping, the core does not track it.
	LookUp(ctx context.Context, rc RequestCtx, parent uint64, name []byte, op *EntryOp)

	// Forget notifies the filesystem that the kernel has released nlookup
	// references to ino. There is no reply; the opcode is informational
	// only and the core never generates a response frame for it.
	Forget(ctx context.Context, rc RequestCtx, ino uint64, nlookup uint64)

	// GetAttr returns the cached stat(2)-like attributes of ino. Some
	// requests carry a file handle instead of relying on the cached parent
	// (see wire.GetattrIn.Fh); handle is 0 and handleValid is false when
	// the kernel omitted it.
	GetAttr(ctx context.Context, rc RequestCtx, ino uint64, handle uint64, handleValid bool, op *AttrOp)

	// SetAttr applies the fields selected in the wire.Fattr* bitmask of in
	// to ino and returns the resulting attributes.
	SetAttr(ctx context.Context, rc RequestCtx, ino uint64, in *wire.SetattrIn, op *AttrOp)

	// ReadLink returns the target of the symlink at ino as raw bytes (no
	// trailing NUL; the reply encoder frames the length itself).
	ReadLink(ctx context.Context, rc RequestCtx, ino uint64, op *DataOp)

	Mknod(ctx context.Context, rc RequestCtx, parent uint64, name []byte, in *wire.MknodIn, op *EntryOp)
	Mkdir(ctx context.Context, rc RequestCtx, parent uint64, name []byte, in *wire.MkdirIn, op *EntryOp)
	Unlink(ctx context.Context, rc RequestCtx, parent uint64, name []byte, op *ErrOp)
	Rmdir(ctx context.Context, rc RequestCtx, parent uint64, name []byte, op *ErrOp)
	Symlink(ctx context.Context, rc RequestCtx, parent uint64, name, target []byte, op *EntryOp)

	// Rename moves oldName in oldParent to newName in newParent. flags is
	// zero for a plain RENAME request and carries RENAME_NOREPLACE /
	// RENAME_EXCHANGE / RENAME_WHITEOUT for a RENAME2 request.
	Rename(ctx context.Context, rc RequestCtx, oldParent uint64, oldName []byte, newParent uint64, newName []byte, flags uint32, op *ErrOp)

	Link(ctx context.Context, rc RequestCtx, ino, newParent uint64, newName []byte, op *EntryOp)

	// Open mints a file handle for ino. The filesystem may request kernel
	// passthrough by setting op.Backing to a host file descriptor before
	// resolving; the dispatcher then performs the backing-open ioctl on
	// the filesystem's behalf (§4.8) and the resulting backing id is
	// released automatically when the matching Release arrives.
	Open(ctx context.Context, rc RequestCtx, ino uint64, in *wire.OpenIn, op *OpenOp)

	// Read returns up to size bytes starting at offset from the handle's
	// underlying data. It is valid, and common, to return fewer bytes than
	// requested without that meaning EOF on a later call; returning zero
	// bytes is the only way to signal "nothing more at this offset" for a
	// regular file (§8 scenario 2).
	Read(ctx context.Context, rc RequestCtx, ino, handle uint64, offset int64, size uint32, op *DataOp)

	// Write stores data at offset in the handle's underlying data and
	// reports how many bytes were actually accepted via op's size result;
	// a short write is legal and the kernel will retry the remainder.
	Write(ctx context.Context, rc RequestCtx, ino, handle uint64, offset int64, data []byte, in *wire.WriteIn, op *WriteOp)

	Flush(ctx context.Context, rc RequestCtx, ino, handle uint64, lockOwner uint64, op *ErrOp)
	Release(ctx context.Context, rc RequestCtx, ino, handle uint64, in *wire.ReleaseIn, op *ErrOp)
	Fsync(ctx context.Context, rc RequestCtx, ino, handle uint64, dataOnly bool, op *ErrOp)

	OpenDir(ctx context.Context, rc RequestCtx, ino uint64, in *wire.OpenIn, op *OpenOp)

	// ReadDir fills entries into op (via op.Builder().Add) starting at
	// offset, the directory cookie the filesystem itself chose for the
	// last entry returned by the previous call (0 on the first call for a
	// given handle). The handler must stop calling Add as soon as it
	// returns false and resolve with whatever was accumulated; the kernel
	// will re-issue ReadDir with the last successful entry's next-offset
	// to continue (§4.2, §8 scenario 3).
	ReadDir(ctx context.Context, rc RequestCtx, ino, handle uint64, offset uint64, op *DirOp)

	ReleaseDir(ctx context.Context, rc RequestCtx, ino, handle uint64, op *ErrOp)
	FsyncDir(ctx context.Context, rc RequestCtx, ino, handle uint64, dataOnly bool, op *ErrOp)
	StatFs(ctx context.Context, rc RequestCtx, ino uint64, op *StatfsOp)
	SetXAttr(ctx context.Context, rc RequestCtx, ino uint64, name, value []byte, flags uint32, op *ErrOp)
	GetXAttr(ctx context.Context, rc RequestCtx, ino uint64, name []byte, size uint32, op *DataOp)
	ListXAttr(ctx context.Context, rc RequestCtx, ino uint64, size uint32, op *DataOp)
	RemoveXAttr(ctx context.Context, rc RequestCtx, ino uint64, name []byte, op *ErrOp)
	Access(ctx context.Context, rc RequestCtx, ino uint64, mask uint32, op *ErrOp)
	Create(ctx context.Context, rc RequestCtx, parent uint64, name []byte, in *wire.CreateIn, op *CreateOp)
	GetLk(ctx context.Context, rc RequestCtx, ino, handle uint64, in *wire.LkIn, op *LkOp)
	SetLk(ctx context.Context, rc RequestCtx, ino, handle uint64, in *wire.LkIn, wait bool, op *ErrOp)
	Bmap(ctx context.Context, rc RequestCtx, ino uint64, in *wire.BmapIn, op *BmapOp)
	Ioctl(ctx context.Context, rc RequestCtx, ino uint64, in *wire.IoctlIn, inputBuf []byte, op *IoctlOp)
	Poll(ctx context.Context, rc RequestCtx, ino uint64, in *wire.PollIn, op *PollOp)
	Fallocate(ctx context.Context, rc RequestCtx, ino uint64, in *wire.FallocateIn, op *ErrOp)
	Lseek(ctx context.Context, rc RequestCtx, ino uint64, in *wire.LseekIn, op *LseekOp)
	CopyFileRange(ctx context.Context, rc RequestCtx, in *wire.CopyFileRangeIn, op *WriteOp)
}

// UnimplementedFileSystem answers every FileSystem method with ENOSYS (or,
// for the no-reply opcodes, simply does nothing). Embed it in a concrete
// filesystem and override only the methods that filesystem supports.
type UnimplementedFileSystem struct{}

var _ FileSystem = UnimplementedFileSystem{}

func (UnimplementedFileSystem) Init(context.Context, RequestCtx, *KernelConfig) error { return nil }
func (UnimplementedFileSystem) Destroy(context.Context, RequestCtx)                   {}

func (UnimplementedFileSystem) LookUp(_ context.Context, _ RequestCtx, _ uint64, _ []byte, op *EntryOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Forget(context.Context, RequestCtx, uint64, uint64) {}
func (UnimplementedFileSystem) GetAttr(_ context.Context, _ RequestCtx, _ uint64, _ uint64, _ bool, op *AttrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) SetAttr(_ context.Context, _ RequestCtx, _ uint64, _ *wire.SetattrIn, op *AttrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) ReadLink(_ context.Context, _ RequestCtx, _ uint64, op *DataOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Mknod(_ context.Context, _ RequestCtx, _ uint64, _ []byte, _ *wire.MknodIn, op *EntryOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Mkdir(_ context.Context, _ RequestCtx, _ uint64, _ []byte, _ *wire.MkdirIn, op *EntryOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Unlink(_ context.Context, _ RequestCtx, _ uint64, _ []byte, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Rmdir(_ context.Context, _ RequestCtx, _ uint64, _ []byte, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Symlink(_ context.Context, _ RequestCtx, _ uint64, _, _ []byte, op *EntryOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Rename(_ context.Context, _ RequestCtx, _ uint64, _ []byte, _ uint64, _ []byte, _ uint32, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Link(_ context.Context, _ RequestCtx, _, _ uint64, _ []byte, op *EntryOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Open(_ context.Context, _ RequestCtx, _ uint64, _ *wire.OpenIn, op *OpenOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Read(_ context.Context, _ RequestCtx, _, _ uint64, _ int64, _ uint32, op *DataOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Write(_ context.Context, _ RequestCtx, _, _ uint64, _ int64, _ []byte, _ *wire.WriteIn, op *WriteOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Flush(_ context.Context, _ RequestCtx, _, _ uint64, _ uint64, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Release(_ context.Context, _ RequestCtx, _, _ uint64, _ *wire.ReleaseIn, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Fsync(_ context.Context, _ RequestCtx, _, _ uint64, _ bool, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) OpenDir(_ context.Context, _ RequestCtx, _ uint64, _ *wire.OpenIn, op *OpenOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) ReadDir(_ context.Context, _ RequestCtx, _, _ uint64, _ uint64, op *DirOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) ReleaseDir(_ context.Context, _ RequestCtx, _, _ uint64, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) FsyncDir(_ context.Context, _ RequestCtx, _, _ uint64, _ bool, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) StatFs(_ context.Context, _ RequestCtx, _ uint64, op *StatfsOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) SetXAttr(_ context.Context, _ RequestCtx, _ uint64, _, _ []byte, _ uint32, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) GetXAttr(_ context.Context, _ RequestCtx, _ uint64, _ []byte, _ uint32, op *DataOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) ListXAttr(_ context.Context, _ RequestCtx, _ uint64, _ uint32, op *DataOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) RemoveXAttr(_ context.Context, _ RequestCtx, _ uint64, _ []byte, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Access(_ context.Context, _ RequestCtx, _ uint64, _ uint32, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Create(_ context.Context, _ RequestCtx, _ uint64, _ []byte, _ *wire.CreateIn, op *CreateOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) GetLk(_ context.Context, _ RequestCtx, _, _ uint64, _ *wire.LkIn, op *LkOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) SetLk(_ context.Context, _ RequestCtx, _, _ uint64, _ *wire.LkIn, _ bool, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Bmap(_ context.Context, _ RequestCtx, _ uint64, _ *wire.BmapIn, op *BmapOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Ioctl(_ context.Context, _ RequestCtx, _ uint64, _ *wire.IoctlIn, _ []byte, op *IoctlOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Poll(_ context.Context, _ RequestCtx, _ uint64, _ *wire.PollIn, op *PollOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Fallocate(_ context.Context, _ RequestCtx, _ uint64, _ *wire.FallocateIn, op *ErrOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) Lseek(_ context.Context, _ RequestCtx, _ uint64, _ *wire.LseekIn, op *LseekOp) {
	op.Error(unix.ENOSYS)
}
func (UnimplementedFileSystem) CopyFileRange(_ context.Context, _ RequestCtx, _ *wire.CopyFileRangeIn, op *WriteOp) {
	op.Error(unix.ENOSYS)
}
