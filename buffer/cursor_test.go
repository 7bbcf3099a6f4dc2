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
	"encoding/binary"
	"testing"
)

type pullTestStruct struct {
	A uint64
	B uint32
	C uint32
}

func TestPullStruct(t *testing.T) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], 0x0102030405060708)
	binary.LittleEndian.PutUint32(buf[8:12], 42)
	binary.LittleEndian.PutUint32(buf[12:16], 43)

	c := NewCursor(buf)
	v, err := Pull[pullTestStruct](&c)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if v.A != 0x0102030405060708 || v.B != 42 || v.C != 43 {
		t.Fatalf("Pull returned %+v", v)
	}
	if c.Len() != 0 {
		t.Fatalf("cursor has %d bytes left, want 0", c.Len())
	}
}

func TestPullShort(t *testing.T) {
	buf := make([]byte, 4)
	c := NewCursor(buf)
	if _, err := Pull[pullTestStruct](&c); err == nil {
		t.Fatal("Pull succeeded over a short buffer, want error")
	}
	if c.Len() != 4 {
		t.Fatalf("failed Pull advanced the cursor: have %d bytes left, want 4", c.Len())
	}
}

func TestPullSlice(t *testing.T) {
	buf := make([]byte, 12)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(i+1))
	}

	c := NewCursor(buf)
	s, err := PullSlice[uint32](&c, 3)
	if err != nil {
		t.Fatalf("PullSlice: %v", err)
	}
	if len(s) != 3 || s[0] != 1 || s[1] != 2 || s[2] != 3 {
		t.Fatalf("PullSlice returned %v", s)
	}
	if c.Len() != 0 {
		t.Fatalf("cursor has %d bytes left, want 0", c.Len())
	}
}

func TestPullSliceZero(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	s, err := PullSlice[uint32](&c, 0)
	if err != nil {
		t.Fatalf("PullSlice(0): %v", err)
	}
	if s != nil {
		t.Fatalf("PullSlice(0) = %v, want nil", s)
	}
	if c.Len() != 3 {
		t.Fatalf("PullSlice(0) advanced the cursor: have %d bytes left, want 3", c.Len())
	}
}

func TestPullSliceShort(t *testing.T) {
	c := NewCursor(make([]byte, 4))
	if _, err := PullSlice[uint32](&c, 3); err == nil {
		t.Fatal("PullSlice succeeded over a short buffer, want error")
	}
}

func TestPullString(t *testing.T) {
	buf := append([]byte("hello"), 0, 'x', 'x')
	c := NewCursor(buf)
	s, err := c.PullString()
	if err != nil {
		t.Fatalf("PullString: %v", err)
	}
	if string(s) != "hello" {
		t.Fatalf("PullString = %q, want %q", s, "hello")
	}
	if c.Len() != 2 {
		t.Fatalf("cursor has %d bytes left, want 2", c.Len())
	}
}

func TestPullStringNoTerminator(t *testing.T) {
	c := NewCursor([]byte("noterminator"))
	if _, err := c.PullString(); err == nil {
		t.Fatal("PullString succeeded with no NUL terminator, want error")
	}
}

func TestPullBytes(t *testing.T) {
	c := NewCursor([]byte("abcdef"))
	b, err := c.PullBytes(3)
	if err != nil {
		t.Fatalf("PullBytes: %v", err)
	}
	if string(b) != "abc" {
		t.Fatalf("PullBytes = %q, want %q", b, "abc")
	}
	if rest := c.Rest(); string(rest) != "def" {
		t.Fatalf("Rest = %q, want %q", rest, "def")
	}
}

func TestPullBytesShort(t *testing.T) {
	c := NewCursor([]byte("ab"))
	if _, err := c.PullBytes(3); err == nil {
		t.Fatal("PullBytes succeeded over a short buffer, want error")
	}
}

func TestPullBytesNegative(t *testing.T) {
	c := NewCursor([]byte("ab"))
	if _, err := c.PullBytes(-1); err == nil {
		t.Fatal("PullBytes(-1) succeeded, want error")
	}
}

func TestRestDoesNotAdvance(t *testing.T) {
	c := NewCursor([]byte("xyz"))
	_ = c.Rest()
	if c.Len() != 3 {
		t.Fatalf("Rest advanced the cursor: have %d bytes left, want 3", c.Len())
	}
}
