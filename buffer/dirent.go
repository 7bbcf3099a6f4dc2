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

package buffer

import (
	"unsafe"

	"github.com/vanadiumfs/fused/wire"
)

// DirentBuilder appends {inode, next-offset, kind, name-bytes} records,
// each padded to 8-byte alignment, until the negotiated max buffer size
// would be exceeded. It implements the "directory reply" primitive of
// SPEC_FULL.md §4.2: the handler calls Add once per entry in listing
// order; once Add returns false the handler must stop iterating and reply
// with whatever was accumulated so far (the entry that didn't fit is
// re-offered on the next READDIR call, keyed by the directory cookie the
// filesystem chose for the last entry that did fit).
type DirentBuilder struct {
	max int
	buf []byte
}

// NewDirentBuilder creates a builder that rejects entries once buf would
// grow past max bytes.
func NewDirentBuilder(max int) *DirentBuilder {
	return &DirentBuilder{max: max}
}

// recordSize returns the 8-byte-aligned size of one directory record with
// the given name length.
func recordSize(nameLen int) int {
	n := int(unsafe.Sizeof(wire.Dirent{})) + nameLen
	return (n + wire.DirentAlign - 1) &^ (wire.DirentAlign - 1)
}

// Add appends one entry. kind is the DT_* directory-entry type (see
// unix.DT_REG etc.). It returns false, appending nothing, if the entry
// would exceed the negotiated maximum; the caller must stop iterating in
// that case and not try a smaller entry afterward (the kernel expects the
// listing to resume strictly from next-offset).
func (d *DirentBuilder) Add(ino, nextOffset uint64, kind uint32, name []byte) bool {
	rs := recordSize(len(name))
	if len(d.buf)+rs > d.max {
		return false
	}

	hdr := wire.Dirent{
		Ino:     ino,
		Off:     nextOffset,
		Namelen: uint32(len(name)),
		Typ:     kind,
	}
	hdrBytes := (*[unsafe.Sizeof(wire.Dirent{})]byte)(unsafe.Pointer(&hdr))[:]

	d.buf = append(d.buf, hdrBytes...)
	d.buf = append(d.buf, name...)
	if pad := rs - (int(unsafe.Sizeof(wire.Dirent{})) + len(name)); pad > 0 {
		d.buf = append(d.buf, make([]byte, pad)...)
	}
	return true
}

// Len reports the accumulated size in bytes.
func (d *DirentBuilder) Len() int { return len(d.buf) }

// Bytes returns the accumulated directory listing, ready to be appended to
// a Reply as its Data body.
func (d *DirentBuilder) Bytes() []byte { return d.buf }
