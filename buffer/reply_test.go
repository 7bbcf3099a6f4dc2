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
	"testing"

	"github.com/vanadiumfs/fused/wire"
)

func TestReplyTotalLenEmpty(t *testing.T) {
	r := NewReply(7)
	if got, want := r.totalLen(), uint32(wire.HeaderOutSize); got != want {
		t.Fatalf("totalLen() = %d, want %d", got, want)
	}
}

func TestReplyTotalLenWithBody(t *testing.T) {
	r := NewReply(7)
	r.AppendData([]byte("hello"))
	attr := wire.Attr{Ino: 9}
	AppendTyped(r, &attr)

	want := uint32(wire.HeaderOutSize) + 5 + uint32(len(TypedBytes(&attr)))
	if got := r.totalLen(); got != want {
		t.Fatalf("totalLen() = %d, want %d", got, want)
	}
}

func TestReplyAppendDataSkipsEmpty(t *testing.T) {
	r := NewReply(1)
	r.AppendData(nil)
	r.AppendData([]byte{})
	if len(r.bodies) != 0 {
		t.Fatalf("AppendData recorded %d empty segments, want 0", len(r.bodies))
	}
}

func TestReplySetErrorClearsBody(t *testing.T) {
	r := NewReply(1)
	r.AppendData([]byte("discarded"))
	r.SetError(-5)
	if len(r.bodies) != 0 {
		t.Fatalf("SetError left %d body segments, want 0", len(r.bodies))
	}
	if r.header.Error != -5 {
		t.Fatalf("header.Error = %d, want -5", r.header.Error)
	}
}

func TestTypedBytesRoundTrip(t *testing.T) {
	attr := wire.Attr{Ino: 123, Size: 456, Mode: 0100644}
	b := TypedBytes(&attr)
	if len(b) == 0 {
		t.Fatal("TypedBytes returned an empty slice")
	}
	// The first field (Ino) is little-endian at offset 0 on every
	// platform this module targets.
	if b[0] != byte(attr.Ino) {
		t.Fatalf("TypedBytes[0] = %d, want %d", b[0], byte(attr.Ino))
	}
}

func TestDropWritten(t *testing.T) {
	segs := [][]byte{[]byte("abc"), []byte("de"), []byte("f")}

	segs = dropWritten(segs, 4)
	if len(segs) != 2 || string(segs[0]) != "e" || string(segs[1]) != "f" {
		t.Fatalf("dropWritten(4) = %v", toStrings(segs))
	}

	segs = dropWritten(segs, 2)
	if len(segs) != 0 {
		t.Fatalf("dropWritten(2) left %v, want empty", toStrings(segs))
	}
}

func TestDropWrittenExactSegmentBoundary(t *testing.T) {
	segs := [][]byte{[]byte("abc"), []byte("def")}
	segs = dropWritten(segs, 3)
	if len(segs) != 1 || string(segs[0]) != "def" {
		t.Fatalf("dropWritten(3) = %v", toStrings(segs))
	}
}

func toStrings(segs [][]byte) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = string(s)
	}
	return out
}

func TestReplyWrittenDefaultsFalse(t *testing.T) {
	r := NewReply(1)
	if r.Written() {
		t.Fatal("a fresh Reply reports Written() == true")
	}
}
