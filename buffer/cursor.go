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

// Package buffer implements the zero-copy argument decoder and the
// scatter/gather reply encoder described in SPEC_FULL.md §4.1/§4.2.
package buffer

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Cursor is a forward-only view over a request's payload bytes (everything
// after the fixed wire.InHeader). It supports exactly three operations:
// pull a typed value, pull a slice of N typed values, and pull a
// zero-terminated byte string. All three borrow from the underlying
// buffer; none copy.
//
// A Cursor is only valid for the lifetime of the buffer it was built from.
// The dispatcher keeps that buffer alive until the reply has been written,
// per the "borrowed-from-buffer decoded arguments" design note.
type Cursor struct {
	b []byte
}

// NewCursor wraps the payload bytes following a request's fixed header.
func NewCursor(payload []byte) Cursor {
	return Cursor{b: payload}
}

// Len reports how many bytes remain unconsumed.
func (c Cursor) Len() int {
	return len(c.b)
}

// errShort is returned (wrapped with context) whenever the cursor is asked
// for more bytes than remain. For a request that gets a reply it becomes an
// EIO reply; a short header, or a short payload of an opcode that gets no
// reply, makes the dispatcher drop the frame instead.
type errShort struct {
	want, have int
}

func (e *errShort) Error() string {
	return fmt.Sprintf("buffer: short read: want %d bytes, have %d", e.want, e.have)
}

// Pull reinterprets the next sizeof(T) bytes as *T, advancing the cursor
// past them. It returns an error (never a fatal panic) if fewer bytes
// remain than the type requires; decode-size mismatches are routine
// per-request errors (EIO), not programmer errors.
//
// Misaligned access is a programmer error: every wire.* struct's natural
// alignment matches the kernel's own record boundaries, which are always
// at least 8-byte aligned for every field T this is instantiated with in
// this codebase. If that invariant is ever violated by a new struct, this
// panics rather than silently producing garbage.
func Pull[T any](c *Cursor) (*T, error) {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if len(c.b) < n {
		return nil, &errShort{want: n, have: len(c.b)}
	}
	p := unsafe.Pointer(&c.b[0])
	if uintptr(p)%unsafe.Alignof(zero) != 0 {
		panic(fmt.Sprintf("buffer: misaligned pull of %T at %p", zero, p))
	}
	v := (*T)(p)
	c.b = c.b[n:]
	return v, nil
}

// PullSlice reinterprets the next n*sizeof(T) bytes as []T, advancing the
// cursor past them.
func PullSlice[T any](c *Cursor, n int) ([]T, error) {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	need := sz * n
	if n < 0 || len(c.b) < need {
		return nil, &errShort{want: need, have: len(c.b)}
	}
	if n == 0 {
		return nil, nil
	}
	p := unsafe.Pointer(&c.b[0])
	if uintptr(p)%unsafe.Alignof(zero) != 0 {
		panic(fmt.Sprintf("buffer: misaligned pull of []%T at %p", zero, p))
	}
	s := unsafe.Slice((*T)(p), n)
	c.b = c.b[need:]
	return s, nil
}

// PullString consumes a zero-terminated byte string, advancing the cursor
// past the terminator. The returned slice excludes the terminator and
// borrows from the buffer; no UTF-8 validation is performed, matching the
// kernel's own treatment of filenames as opaque bytes.
func (c *Cursor) PullString() ([]byte, error) {
	i := bytes.IndexByte(c.b, 0)
	if i < 0 {
		return nil, &errShort{want: len(c.b) + 1, have: len(c.b)}
	}
	s := c.b[:i]
	c.b = c.b[i+1:]
	return s, nil
}

// PullBytes consumes exactly n raw bytes with no type interpretation,
// used for xattr values and write payloads whose length is carried in a
// preceding fixed field rather than implied by a type.
func (c *Cursor) PullBytes(n int) ([]byte, error) {
	if n < 0 || len(c.b) < n {
		return nil, &errShort{want: n, have: len(c.b)}
	}
	b := c.b[:n]
	c.b = c.b[n:]
	return b, nil
}

// Rest returns every remaining byte without advancing the cursor past
// anything; callers that need the precise remaining span (e.g. WRITE's
// data payload) use this once they know it is the final field.
func (c Cursor) Rest() []byte {
	return c.b
}
