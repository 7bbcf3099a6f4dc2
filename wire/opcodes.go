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

// Package wire contains the fixed-layout structs, opcode constants, and
// capability bitflags that make up the FUSE kernel wire protocol. Nothing in
// this package blocks, allocates beyond what the caller hands it, or knows
// about sessions, channels, or user filesystems; it is pure data shapes.
package wire

// Opcode identifies the kind of a request or notification crossing
// /dev/fuse. The numbering is fixed by the kernel and must not be changed.
type Opcode uint32

const (
	OpLookup      Opcode = 1
	OpForget      Opcode = 2
	OpGetattr     Opcode = 3
	OpSetattr     Opcode = 4
	OpReadlink    Opcode = 5
	OpSymlink     Opcode = 6
	OpMknod       Opcode = 8
	OpMkdir       Opcode = 9
	OpUnlink      Opcode = 10
	OpRmdir       Opcode = 11
	OpRename      Opcode = 12
	OpLink        Opcode = 13
	OpOpen        Opcode = 14
	OpRead        Opcode = 15
	OpWrite       Opcode = 16
	OpStatfs      Opcode = 17
	OpRelease     Opcode = 18
	OpFsync       Opcode = 20
	OpSetxattr    Opcode = 21
	OpGetxattr    Opcode = 22
	OpListxattr   Opcode = 23
	OpRemovexattr Opcode = 24
	OpFlush       Opcode = 25
	OpInit        Opcode = 26
	OpOpendir     Opcode = 27
	OpReaddir     Opcode = 28
	OpReleasedir  Opcode = 29
	OpFsyncdir    Opcode = 30
	OpGetlk       Opcode = 31
	OpSetlk       Opcode = 32
	OpSetlkw      Opcode = 33
	OpAccess      Opcode = 34
	OpCreate      Opcode = 35
	OpInterrupt   Opcode = 36
	OpBmap        Opcode = 37
	OpDestroy     Opcode = 38
	OpIoctl       Opcode = 39
	OpPoll        Opcode = 40
	OpNotifyReply Opcode = 41
	OpBatchForget Opcode = 42
	OpFallocate   Opcode = 43
	OpReaddirplus Opcode = 44
	OpRename2     Opcode = 45
	OpLseek       Opcode = 46
	OpCopyFileRng Opcode = 47

	// CuseInit is a distinct, out-of-band handshake opcode used only by
	// CUSE (character device passthrough) sessions. It is listed for
	// completeness; this runtime never dispatches it.
	OpCuseInit Opcode = 4096
)

// names gives a short diagnostic label for each opcode, used by
// Opcode.String. Opcodes not present here print as "OPCODE_UNKNOWN".
var names = map[Opcode]string{
	OpLookup:      "LOOKUP",
	OpForget:      "FORGET",
	OpGetattr:     "GETATTR",
	OpSetattr:     "SETATTR",
	OpReadlink:    "READLINK",
	OpSymlink:     "SYMLINK",
	OpMknod:       "MKNOD",
	OpMkdir:       "MKDIR",
	OpUnlink:      "UNLINK",
	OpRmdir:       "RMDIR",
	OpRename:      "RENAME",
	OpLink:        "LINK",
	OpOpen:        "OPEN",
	OpRead:        "READ",
	OpWrite:       "WRITE",
	OpStatfs:      "STATFS",
	OpRelease:     "RELEASE",
	OpFsync:       "FSYNC",
	OpSetxattr:    "SETXATTR",
	OpGetxattr:    "GETXATTR",
	OpListxattr:   "LISTXATTR",
	OpRemovexattr: "REMOVEXATTR",
	OpFlush:       "FLUSH",
	OpInit:        "INIT",
	OpOpendir:     "OPENDIR",
	OpReaddir:     "READDIR",
	OpReleasedir:  "RELEASEDIR",
	OpFsyncdir:    "FSYNCDIR",
	OpGetlk:       "GETLK",
	OpSetlk:       "SETLK",
	OpSetlkw:      "SETLKW",
	OpAccess:      "ACCESS",
	OpCreate:      "CREATE",
	OpInterrupt:   "INTERRUPT",
	OpBmap:        "BMAP",
	OpDestroy:     "DESTROY",
	OpIoctl:       "IOCTL",
	OpPoll:        "POLL",
	OpNotifyReply: "NOTIFY_REPLY",
	OpBatchForget: "BATCH_FORGET",
	OpFallocate:   "FALLOCATE",
	OpReaddirplus: "READDIRPLUS",
	OpRename2:     "RENAME2",
	OpLseek:       "LSEEK",
	OpCopyFileRng: "COPY_FILE_RANGE",
	OpCuseInit:    "CUSE_INIT",
}

func (o Opcode) String() string {
	if n, ok := names[o]; ok {
		return n
	}
	return "OPCODE_UNKNOWN"
}

// NoReply reports whether the kernel expects no reply at all for this
// opcode. The dispatcher must never write a frame for these.
func (o Opcode) NoReply() bool {
	return o == OpForget || o == OpBatchForget
}

// TrailingNames gives the number of zero-terminated name strings that
// follow an opcode's fixed struct payload, in declared order. This mirrors
// the kernel's own wire layout: CREATE/MKNOD/MKDIR/LINK/LOOKUP/
// GETXATTR/SETXATTR/REMOVEXATTR/RMDIR/UNLINK carry one name,
// RENAME/RENAME2/SYMLINK carry two (old+new, or link name + link target).
func (o Opcode) TrailingNames() int {
	switch o {
	case OpLookup, OpMknod, OpMkdir, OpUnlink, OpRmdir, OpLink,
		OpGetxattr, OpRemovexattr, OpCreate, OpSetxattr:
		return 1
	case OpRename, OpRename2, OpSymlink:
		return 2
	default:
		return 0
	}
}

// Notification codes are written into the error field of a fabricated
// OutHeader whose unique id is zero. They are negative so they can never
// collide with a real errno on the wire (errno replies are also negative,
// but notification codes are sent with unique==0, which no real request
// ever carries).
type NotifyCode int32

const (
	NotifyPoll        NotifyCode = -1
	NotifyInvalInode  NotifyCode = -2
	NotifyInvalEntry  NotifyCode = -3
	NotifyStore       NotifyCode = -4
	NotifyRetrieve    NotifyCode = -5
	NotifyInvalDelete NotifyCode = -6
)
