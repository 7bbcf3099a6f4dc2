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

//go:build linux

package backingioctl

import "testing"

// These expected values are computed by hand against the kernel's _IOC
// macro (dir<<30 | type<<8 | nr<<0 | size<<16) rather than against this
// package's own iow(), so a shift-order mistake in iow() would not be
// able to hide from this test by also being wrong here.
func TestRequestNumbersMatchIOCConvention(t *testing.T) {
	const (
		iocWrite  = 1
		iocMagic  = 229
		nrOpen    = 1
		nrClose   = 2
		sizeOut   = 16 // backingMapOut: uint32 + uint32 + uint64, no padding
		sizeClose = 4  // uint32
	)

	wantOpen := uintptr(iocWrite)<<30 | uintptr(iocMagic)<<8 | uintptr(nrOpen) | uintptr(sizeOut)<<16
	if reqBackingOpen != wantOpen {
		t.Errorf("reqBackingOpen = %#x, want %#x", reqBackingOpen, wantOpen)
	}

	wantClose := uintptr(iocWrite)<<30 | uintptr(iocMagic)<<8 | uintptr(nrClose) | uintptr(sizeClose)<<16
	if reqBackingClose != wantClose {
		t.Errorf("reqBackingClose = %#x, want %#x", reqBackingClose, wantClose)
	}

	const (
		iocRead = 2
		nrClone = 0
		sizeU32 = 4
	)
	wantClone := uintptr(iocRead)<<30 | uintptr(iocMagic)<<8 | uintptr(nrClone) | uintptr(sizeU32)<<16
	if reqDevClone != wantClone {
		t.Errorf("reqDevClone = %#x, want %#x", reqDevClone, wantClone)
	}
}
