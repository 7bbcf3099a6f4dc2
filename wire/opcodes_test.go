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

import "testing"

func TestOpcodeString(t *testing.T) {
	if got, want := OpLookup.String(), "LOOKUP"; got != want {
		t.Errorf("OpLookup.String() = %q, want %q", got, want)
	}
	if got, want := Opcode(9999).String(), "OPCODE_UNKNOWN"; got != want {
		t.Errorf("Opcode(9999).String() = %q, want %q", got, want)
	}
}

func TestOpcodeNoReply(t *testing.T) {
	for _, o := range []Opcode{OpForget, OpBatchForget} {
		if !o.NoReply() {
			t.Errorf("%v.NoReply() = false, want true", o)
		}
	}
	for _, o := range []Opcode{OpLookup, OpOpen, OpRead, OpGetattr} {
		if o.NoReply() {
			t.Errorf("%v.NoReply() = true, want false", o)
		}
	}
}

func TestOpcodeTrailingNames(t *testing.T) {
	cases := map[Opcode]int{
		OpLookup:      1,
		OpMknod:       1,
		OpMkdir:       1,
		OpUnlink:      1,
		OpRmdir:       1,
		OpLink:        1,
		OpGetxattr:    1,
		OpRemovexattr: 1,
		OpCreate:      1,
		OpSetxattr:    1,
		OpRename:      2,
		OpRename2:     2,
		OpSymlink:     2,
		OpRead:        0,
		OpWrite:       0,
		OpGetattr:     0,
	}
	for o, want := range cases {
		if got := o.TrailingNames(); got != want {
			t.Errorf("%v.TrailingNames() = %d, want %d", o, got, want)
		}
	}
}

func TestNotifyCodesAreNegativeAndDistinct(t *testing.T) {
	codes := []NotifyCode{
		NotifyPoll, NotifyInvalInode, NotifyInvalEntry,
		NotifyStore, NotifyRetrieve, NotifyInvalDelete,
	}
	seen := make(map[NotifyCode]bool, len(codes))
	for _, c := range codes {
		if c >= 0 {
			t.Errorf("notify code %d is not negative", c)
		}
		if seen[c] {
			t.Errorf("duplicate notify code %d", c)
		}
		seen[c] = true
	}
}

func TestHeaderSizes(t *testing.T) {
	// The kernel's wire layout is fixed: 40-byte request header, 16-byte
	// reply header, on every platform this module targets.
	if HeaderInSize != 40 {
		t.Errorf("HeaderInSize = %d, want 40", HeaderInSize)
	}
	if HeaderOutSize != 16 {
		t.Errorf("HeaderOutSize = %d, want 16", HeaderOutSize)
	}
}
