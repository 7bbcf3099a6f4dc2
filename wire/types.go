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

package wire

import "unsafe"

// InHeader is the fixed 40-byte header at the start of every inbound
// request frame: total length, opcode, unique id, target inode, and the
// uid/gid/pid of the calling process.
type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	NodeID  uint64
	UID     uint32
	GID     uint32
	PID     uint32
	Padding uint32
}

// OutHeader is the fixed 16-byte header at the start of every reply frame
// (and every fabricated notification frame).
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const (
	HeaderInSize  = int(unsafe.Sizeof(InHeader{}))
	HeaderOutSize = int(unsafe.Sizeof(OutHeader{}))
)

// Attr mirrors struct fuse_attr: the stat(2)-like attributes the kernel
// caches per inode.
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint32
	BlkSize   uint32
	Padding   uint32
}

// EntryOut is the reply body for LOOKUP, MKNOD, MKDIR, SYMLINK, and LINK:
// the newly (re)referenced inode plus cache-validity timeouts.
type EntryOut struct {
	NodeID         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

// AttrOut is the reply body for GETATTR and SETATTR.
type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

// InitIn is the request body of the INIT handshake, as proposed by the
// kernel.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
	FlagsHi      uint32
}

// InitOut is the reply body of the INIT handshake, as negotiated by the
// core and the user's init hook.
type InitOut struct {
	Major                uint32
	Minor                uint32
	MaxReadahead         uint32
	Flags                uint32
	MaxBackground        uint16
	CongestionThreshold  uint16
	MaxWrite             uint32
	TimeGranNsec         uint32
	MaxPages             uint16
	MapAlignment         uint16
	FlagsHi              uint32
	MaxStackDepth        uint32
	Unused               [6]uint32
}

const (
	KernelVersion      = 7
	MinimumMinorNeeded = 13
)

// GetattrIn carries an optional file handle; fh is valid only when
// GetattrFlagsFh is set (the kernel may ask by handle instead of by inode
// when the inode has no cached parent, e.g. after open-by-handle).
type GetattrIn struct {
	GetattrFlags uint32
	Padding      uint32
	Fh           uint64
}

const GetattrFlagsFh uint32 = 1 << 0

// SetattrIn carries the set of attribute fields the kernel wants changed,
// selected by the FATTR_* bitmask in Valid.
type SetattrIn struct {
	Valid     uint32
	Padding   uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Unused4   uint32
	UID       uint32
	GID       uint32
	Unused5   uint32
}

const (
	FattrMode      uint32 = 1 << 0
	FattrUID       uint32 = 1 << 1
	FattrGID       uint32 = 1 << 2
	FattrSize      uint32 = 1 << 3
	FattrAtime     uint32 = 1 << 4
	FattrMtime     uint32 = 1 << 5
	FattrFh        uint32 = 1 << 6
	FattrAtimeNow  uint32 = 1 << 7
	FattrMtimeNow  uint32 = 1 << 8
	FattrLockOwner uint32 = 1 << 9
	FattrCtime     uint32 = 1 << 10
)

// MknodIn precedes one trailing name.
type MknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	Padding uint32
}

// MkdirIn precedes one trailing name.
type MkdirIn struct {
	Mode  uint32
	Umask uint32
}

// RenameIn precedes two trailing names (old name, new name).
type RenameIn struct {
	Newdir uint64
}

// Rename2In is RenameIn plus a flags word (RENAME_NOREPLACE / RENAME_EXCHANGE
// / RENAME_WHITEOUT), also followed by two trailing names.
type Rename2In struct {
	Newdir  uint64
	Flags   uint32
	Padding uint32
}

// LinkIn precedes one trailing name (the new link's name).
type LinkIn struct {
	Oldnodeid uint64
}

// OpenIn carries the open(2) flags the kernel received from the caller.
type OpenIn struct {
	Flags  uint32
	Unused uint32
}

// OpenOut carries the filesystem-minted file handle and FOPEN_* flags.
type OpenOut struct {
	Fh        uint64
	OpenFlags uint32
	Padding   uint32
}

const (
	FopenDirectIO   uint32 = 1 << 0
	FopenKeepCache  uint32 = 1 << 1
	FopenNonseekable uint32 = 1 << 2
	FopenCacheDir   uint32 = 1 << 3
	FopenStream     uint32 = 1 << 4
	FopenNoFlush    uint32 = 1 << 5
	FopenPassthrough uint32 = 1 << 9
)

// ReadIn carries the file handle, offset, and size of a READ request.
type ReadIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	ReadFlags  uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

// WriteIn precedes the raw bytes being written.
type WriteIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

const (
	WriteCache     uint32 = 1 << 0
	WriteLockOwner uint32 = 1 << 1
)

// WriteOut is the reply body of WRITE: the number of bytes actually
// written.
type WriteOut struct {
	Size    uint32
	Padding uint32
}

// ReleaseIn carries the file handle being released and, for files, lock
// release information.
type ReleaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

const ReleaseFlush uint32 = 1 << 0

// FlushIn carries the file handle and lock owner of a FLUSH request (close
// of one of possibly several open file descriptors referencing the same
// handle).
type FlushIn struct {
	Fh        uint64
	Unused    uint32
	Padding   uint32
	LockOwner uint64
}

// FsyncIn carries the file handle and the "data only" flag.
type FsyncIn struct {
	Fh         uint64
	FsyncFlags uint32
	Padding    uint32
}

const FsyncFdatasync uint32 = 1 << 0

// CreateIn precedes one trailing name. It combines the semantics of
// OpenIn and MknodIn: the kernel wants an atomic create-and-open.
type CreateIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
}

// CreateOut is EntryOut immediately followed by OpenOut.
type CreateOut struct {
	Entry EntryOut
	Open  OpenOut
}

// AccessIn carries the requested access mode (R_OK/W_OK/X_OK/F_OK).
type AccessIn struct {
	Mask    uint32
	Padding uint32
}

const (
	AccessOK uint32 = 0
	AccessX  uint32 = 1
	AccessW  uint32 = 2
	AccessR  uint32 = 4
)

// StatfsOut mirrors struct statfs.
type StatfsOut struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

// SetxattrIn precedes two trailing byte spans: the attribute name (a
// zero-terminated string, consumed via PullString) and the raw value (Size
// bytes, consumed via PullBytes).
type SetxattrIn struct {
	Size    uint32
	Flags   uint32
}

// GetxattrIn precedes one trailing name.
type GetxattrIn struct {
	Size    uint32
	Padding uint32
}

// GetxattrOut is used when Size requested space for the value; when the
// caller passed Size==0 the kernel instead wants only the required size
// back, reusing this same struct with Value left empty by the filesystem.
type GetxattrOut struct {
	Size    uint32
	Padding uint32
}

// ForgetIn carries the number of lookup references the kernel is
// releasing for InHeader.NodeID.
type ForgetIn struct {
	Nlookup uint64
}

// ForgetOne is one element of a BATCH_FORGET payload.
type ForgetOne struct {
	NodeID  uint64
	Nlookup uint64
}

// BatchForgetIn precedes Count ForgetOne records.
type BatchForgetIn struct {
	Count   uint32
	Padding uint32
}

// InterruptIn names the unique id of the request to cancel.
type InterruptIn struct {
	Unique uint64
}

// BmapIn / BmapOut implement the (now rare) block-mapping opcode for
// filesystems that expose a block device image.
type BmapIn struct {
	Block     uint64
	Blocksize uint32
	Padding   uint32
}

type BmapOut struct {
	Block uint64
}

// FileLock mirrors struct flock, used by GETLK/SETLK/SETLKW.
type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	PID   uint32
}

// LkIn carries the file handle, lock owner, and requested lock.
type LkIn struct {
	Fh      uint64
	Owner   uint64
	Lock    FileLock
	LkFlags uint32
	Padding uint32
}

const LkFlagFlock uint32 = 1 << 0

type LkOut struct {
	Lock FileLock
}

// IoctlIn / IoctlOut carry an arbitrary ioctl request; the core treats the
// in/out buffers as opaque bytes and never interprets Cmd.
type IoctlIn struct {
	Fh      uint64
	Flags   uint32
	Cmd     uint32
	Arg     uint64
	InSize  uint32
	OutSize uint32
}

type IoctlOut struct {
	Result  int32
	Flags   uint32
	InIovs  uint32
	OutIovs uint32
}

const (
	IoctlCompat    uint32 = 1 << 0
	IoctlUnrestricted uint32 = 1 << 1
	IoctlRetry     uint32 = 1 << 2
	IoctlDir       uint32 = 1 << 4
)

// PollIn / PollOut implement POLL; Kh is the kernel's poll handle, used by
// the filesystem to later call Notifier.Poll (not modeled in the core's
// three production notifications, see SPEC_FULL.md §4.7).
type PollIn struct {
	Fh     uint64
	Kh     uint64
	Flags  uint32
	Events uint32
}

type PollOut struct {
	Revents uint32
	Padding uint32
}

// FallocateIn carries the arguments of fallocate(2).
type FallocateIn struct {
	Fh      uint64
	Offset  uint64
	Length  uint64
	Mode    uint32
	Padding uint32
}

// LseekIn / LseekOut implement SEEK_DATA / SEEK_HOLE passthrough.
type LseekIn struct {
	Fh      uint64
	Offset  uint64
	Whence  uint32
	Padding uint32
}

type LseekOut struct {
	Offset uint64
}

// CopyFileRangeIn implements the copy_file_range(2) passthrough opcode.
type CopyFileRangeIn struct {
	FhIn    uint64
	OffIn   uint64
	NodeOut uint64
	FhOut   uint64
	OffOut  uint64
	Len     uint64
	Flags   uint64
}

// Dirent is one directory entry record as appended by the directory reply
// builder. On the wire it is followed immediately by Namelen raw name
// bytes and then zero-padding out to an 8-byte boundary.
type Dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Typ     uint32
}

const DirentAlign = 8

// NotifyInvalInodeOut is the fabricated-frame body for InvalidateInode.
type NotifyInvalInodeOut struct {
	Ino    uint64
	Off    int64
	Length int64
}

// NotifyInvalEntryOut precedes one trailing name (the entry to drop from
// parent's directory cache).
type NotifyInvalEntryOut struct {
	Parent  uint64
	Namelen uint32
	Padding uint32
}

// NotifyStoreOut precedes the raw bytes being stored into the kernel's
// page cache for Ino at Offset.
type NotifyStoreOut struct {
	Ino     uint64
	Offset  uint64
	Size    uint32
	Padding uint32
}
