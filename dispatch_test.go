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
	"encoding/binary"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/buffer"
	"github.com/vanadiumfs/fused/wire"
)

// stubFS answers GetAttr with a fixed inode and leaves everything else to
// UnimplementedFileSystem's ENOSYS defaults.
type stubFS struct {
	UnimplementedFileSystem
	attrIno uint64
}

func (s *stubFS) Init(ctx context.Context, rc RequestCtx, kc *KernelConfig) error {
	return nil
}

func (s *stubFS) GetAttr(ctx context.Context, rc RequestCtx, ino uint64, handle uint64, handleValid bool, op *AttrOp) {
	op.Attr(wire.Attr{Ino: s.attrIno, Mode: unix.S_IFREG | 0644}, 0)
}

func frame(hdr wire.InHeader, body []byte) []byte {
	hdr.Len = uint32(wire.HeaderInSize + len(body))
	buf := append([]byte{}, buffer.TypedBytes(&hdr)...)
	buf = append(buf, body...)
	return buf
}

func initFrame(unique uint64) []byte {
	in := wire.InitIn{Major: wire.KernelVersion, Minor: wire.MinimumMinorNeeded}
	hdr := wire.InHeader{Opcode: wire.OpInit, Unique: unique}
	return frame(hdr, buffer.TypedBytes(&in))
}

func mustRunningDispatcher(t *testing.T, fs FileSystem) *Dispatcher {
	t.Helper()
	d := NewDispatcher(fs)
	reply, err := d.Dispatch(context.Background(), initFrame(1))
	if err != nil {
		t.Fatalf("INIT dispatch: %v", err)
	}
	if reply == nil {
		t.Fatal("INIT produced no reply")
	}
	return d
}

func TestDispatchInitNegotiatesVersion(t *testing.T) {
	d := NewDispatcher(&stubFS{})
	reply, err := d.Dispatch(context.Background(), initFrame(1))
	if err != nil {
		t.Fatalf("Dispatch(INIT): %v", err)
	}
	if reply == nil {
		t.Fatal("Dispatch(INIT) returned a nil reply")
	}
	if d.state != stateRunning {
		t.Fatalf("state after INIT = %v, want stateRunning", d.state)
	}
}

func TestDispatchGetattr(t *testing.T) {
	fs := &stubFS{attrIno: 42}
	d := mustRunningDispatcher(t, fs)

	in := wire.GetattrIn{}
	hdr := wire.InHeader{Opcode: wire.OpGetattr, Unique: 2, NodeID: 42}
	reply, err := d.Dispatch(context.Background(), frame(hdr, buffer.TypedBytes(&in)))
	if err != nil {
		t.Fatalf("Dispatch(GETATTR): %v", err)
	}
	if reply == nil {
		t.Fatal("Dispatch(GETATTR) returned a nil reply")
	}
	errno := replyErrno(t, reply)
	if errno != 0 {
		t.Fatalf("errno = %d, want 0", errno)
	}
}

func TestDispatchBeforeInitIsEIO(t *testing.T) {
	d := NewDispatcher(&stubFS{})

	in := wire.GetattrIn{}
	hdr := wire.InHeader{Opcode: wire.OpGetattr, Unique: 2, NodeID: 1}
	reply, err := d.Dispatch(context.Background(), frame(hdr, buffer.TypedBytes(&in)))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if errno := replyErrno(t, reply); errno != -int32(unix.EIO) {
		t.Fatalf("errno = %d, want %d", errno, -int32(unix.EIO))
	}
}

func TestDispatchUnimplementedOpensReturnsENOSYS(t *testing.T) {
	fs := &stubFS{}
	d := mustRunningDispatcher(t, fs)

	in := wire.OpenIn{}
	hdr := wire.InHeader{Opcode: wire.OpOpen, Unique: 3, NodeID: 1}
	reply, err := d.Dispatch(context.Background(), frame(hdr, buffer.TypedBytes(&in)))
	if err != nil {
		t.Fatalf("Dispatch(OPEN): %v", err)
	}
	if errno := replyErrno(t, reply); errno != -int32(unix.ENOSYS) {
		t.Fatalf("errno = %d, want %d", errno, -int32(unix.ENOSYS))
	}
}

// replyErrno writes reply through a pipe, the same path Session.Run uses
// against /dev/fuse, and decodes the errno field back out of the raw
// OutHeader bytes that crossed it.
func replyErrno(t *testing.T, reply *buffer.Reply) int32 {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	if err := reply.Write(int(w.Fd())); err != nil {
		w.Close()
		t.Fatalf("Reply.Write: %v", err)
	}
	w.Close()

	raw := make([]byte, wire.HeaderOutSize)
	if _, err := r.Read(raw); err != nil {
		t.Fatalf("read back reply header: %v", err)
	}
	return int32(binary.LittleEndian.Uint32(raw[4:8]))
}
