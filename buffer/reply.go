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
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/wire"
)

// Reply accumulates the header plus zero or more body segments of an
// outbound frame, then writes them to the device with a single
// scatter/gather syscall so the kernel observes the frame atomically.
//
// A Reply is built fresh per request; it is not reused across requests
// (unlike the teacher's pooled OutMessage, which this module does not
// carry forward, see DESIGN.md).
type Reply struct {
	header  wire.OutHeader
	bodies  [][]byte
	written bool
}

// NewReply starts a reply bound to the given request's unique id.
func NewReply(unique uint64) *Reply {
	return &Reply{header: wire.OutHeader{Unique: unique}}
}

// Empty marks the reply as a bare success with no body.
func (r *Reply) Empty() {}

// AppendTyped appends one fixed-layout struct to the body, in declared
// order. Call it more than once for replies with multiple concatenated
// structs (e.g. CreateOut = EntryOut + OpenOut).
func AppendTyped[T any](r *Reply, v *T) {
	r.bodies = append(r.bodies, TypedBytes(v))
}

// TypedBytes reinterprets v as its raw wire bytes, with no copy. Used
// directly (instead of through AppendTyped) by callers that assemble a
// frame's body segments themselves, such as the notifier's fabricated
// frames.
func TypedBytes[T any](v *T) []byte {
	n := int(unsafe.Sizeof(*v))
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), n)
}

// AppendData appends a variable-length byte span: read payload, readlink
// target, or xattr value.
func (r *Reply) AppendData(b []byte) {
	if len(b) == 0 {
		return
	}
	r.bodies = append(r.bodies, b)
}

// SetError turns this into an error reply: no body, a negated errno. errno
// must already be negative (callers pass -int32(unix.ENOENT) etc.) so that
// zero reliably means success elsewhere in the codec.
func (r *Reply) SetError(errno int32) {
	r.bodies = nil
	r.header.Error = errno
}

// totalLen computes the frame length the header must carry: itself plus
// every body segment.
func (r *Reply) totalLen() uint32 {
	n := wire.HeaderOutSize
	for _, b := range r.bodies {
		n += len(b)
	}
	return uint32(n)
}

// Write emits the frame to fd as a single writev(2) call. Partial writes
// are retried (writev on a character device either completes or fails; a
// short count here means the kernel accepted less than offered, which is
// retried from the first unwritten byte).
func (r *Reply) Write(fd int) error {
	r.header.Len = r.totalLen()
	hdr := (*[wire.HeaderOutSize]byte)(unsafe.Pointer(&r.header))[:]

	segs := make([][]byte, 0, 1+len(r.bodies))
	segs = append(segs, hdr)
	segs = append(segs, r.bodies...)

	want := 0
	for _, s := range segs {
		want += len(s)
	}

	for want > 0 {
		n, err := writev(fd, segs)
		if err != nil {
			return fmt.Errorf("writev reply (unique=%d): %w", r.header.Unique, err)
		}
		if n == want {
			r.written = true
			return nil
		}
		if n == 0 {
			return fmt.Errorf("writev reply (unique=%d): wrote zero bytes", r.header.Unique)
		}
		segs = dropWritten(segs, n)
		want -= n
	}
	r.written = true
	return nil
}

// Written reports whether Write completed successfully at least once.
func (r *Reply) Written() bool { return r.written }

func dropWritten(segs [][]byte, n int) [][]byte {
	for n > 0 && len(segs) > 0 {
		if n < len(segs[0]) {
			segs[0] = segs[0][n:]
			return segs
		}
		n -= len(segs[0])
		segs = segs[1:]
	}
	return segs
}

func writev(fd int, segs [][]byte) (int, error) {
	iovs := make([]unix.Iovec, 0, len(segs))
	for _, s := range segs {
		if len(s) == 0 {
			continue
		}
		var v unix.Iovec
		v.Base = &s[0]
		v.SetLen(len(s))
		iovs = append(iovs, v)
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall(unix.SYS_WRITEV, uintptr(fd),
		uintptr(unsafe.Pointer(&iovs[0])), uintptr(len(iovs)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}
