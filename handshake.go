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
	"fmt"
	"time"

	"github.com/vanadiumfs/fused/wire"
)

// maxWriteCeiling is the largest MaxWrite the core will ever negotiate,
// matching the teacher's buffer sizing limit.
const maxWriteCeiling = 1 << 20

// KernelConfig is handed to the user's Init hook during the handshake
// (§4.4 step 3). Every setter validates its argument and returns an error
// rather than panicking, so a filesystem can surface a bad value to its
// caller; SetMaxWrite alone clamps an over-large value instead of rejecting
// it.
type KernelConfig struct {
	flags               wire.InitFlags
	offered             wire.InitFlags
	maxWrite            uint32
	maxBackground       uint16
	congestionThreshold uint16
	maxReadahead        uint32
	maxStackDepth       uint32
	timeGranNsec        uint32
}

func newKernelConfig(negotiated wire.InitFlags, kernelReadahead uint32) *KernelConfig {
	return &KernelConfig{
		flags:               negotiated,
		maxWrite:            maxWriteCeiling,
		maxBackground:       12,
		congestionThreshold: 9,
		maxReadahead:        kernelReadahead,
		maxStackDepth:       1,
		timeGranNsec:        1,
	}
}

// EnableCapability turns on a single capability bit, failing if the kernel
// never offered it in the first place.
func (c *KernelConfig) EnableCapability(bit wire.InitFlags) error {
	if c.offered&bit != bit {
		return fmt.Errorf("handshake: capability %#x not offered by the kernel", uint64(bit&^c.offered))
	}
	c.flags |= bit
	return nil
}

// DisableCapability turns off a capability bit the default set enabled.
func (c *KernelConfig) DisableCapability(bit wire.InitFlags) {
	c.flags &^= bit
}

// SetMaxWrite sets the largest single WRITE payload the kernel may send,
// clamping anything above the implementation ceiling down to it. Zero is
// rejected.
func (c *KernelConfig) SetMaxWrite(n uint32) error {
	if n == 0 {
		return fmt.Errorf("handshake: max-write must be positive")
	}
	if n > maxWriteCeiling {
		n = maxWriteCeiling
	}
	c.maxWrite = n
	return nil
}

// SetMaxBackground bounds the number of background (readahead/writeback)
// requests the kernel may have outstanding at once.
func (c *KernelConfig) SetMaxBackground(n uint16) error {
	if n == 0 {
		return fmt.Errorf("handshake: max-background must be positive")
	}
	c.maxBackground = n
	return nil
}

// SetCongestionThreshold sets the background queue depth at which the
// kernel starts throttling new background requests. Must not exceed
// MaxBackground.
func (c *KernelConfig) SetCongestionThreshold(n uint16) error {
	if n > c.maxBackground {
		return fmt.Errorf("handshake: congestion threshold %d exceeds max-background %d", n, c.maxBackground)
	}
	c.congestionThreshold = n
	return nil
}

// SetMaxReadahead bounds the kernel's own readahead window. It may only be
// lowered from the kernel's proposal, never raised.
func (c *KernelConfig) SetMaxReadahead(n uint32) error {
	if n > c.maxReadahead {
		return fmt.Errorf("handshake: max-readahead %d exceeds kernel proposal %d", n, c.maxReadahead)
	}
	c.maxReadahead = n
	return nil
}

// SetMaxStackDepth bounds how many layers of kernel-side passthrough
// (backing-id) stacking are permitted (§4.8).
func (c *KernelConfig) SetMaxStackDepth(n uint32) error {
	if n == 0 {
		return fmt.Errorf("handshake: max-stack-depth must be positive")
	}
	c.maxStackDepth = n
	return nil
}

// SetTimeGranularity sets the coarsest unit, in nanoseconds, that the
// filesystem's timestamps are meaningful to. Must be a power of ten between
// 1 and 1e9.
func (c *KernelConfig) SetTimeGranularity(d time.Duration) error {
	n := uint32(d.Nanoseconds())
	if n == 0 || n > 1_000_000_000 {
		return fmt.Errorf("handshake: time granularity %v out of range", d)
	}
	for m := n; m > 1; m /= 10 {
		if m%10 != 0 {
			return fmt.Errorf("handshake: time granularity %v is not a power of ten nanoseconds", d)
		}
	}
	c.timeGranNsec = n
	return nil
}

// negotiateVersion implements §4.4 step 1: if the kernel's major version
// does not match the core's, the core replies with only its own supported
// major/minor and waits for the kernel to resend INIT; it never attempts to
// serve requests under a mismatched major.
func negotiateVersion(in *wire.InitIn) (major, minor uint32, ready bool) {
	if in.Major != wire.KernelVersion {
		return wire.KernelVersion, wire.MinimumMinorNeeded, false
	}
	minor = in.Minor
	if minor > wire.MinimumMinorNeeded {
		// The core only speaks up to the minor version it was built
		// against; downgrade so later decoding never sees fields the
		// kernel would otherwise fill in for a newer minor.
		minor = wire.MinimumMinorNeeded
	}
	return wire.KernelVersion, minor, true
}

// negotiate runs the full §4.4 handshake: version check, capability
// intersection, the user's Init hook, and the reply body. ok is false when
// the core replied with a version-only frame and the caller must wait for
// another INIT before proceeding.
func negotiate(ctx context.Context, rc RequestCtx, fs FileSystem, in *wire.InitIn) (out wire.InitOut, ok bool, err error) {
	major, minor, ready := negotiateVersion(in)
	if !ready {
		out.Major, out.Minor = major, minor
		return out, false, nil
	}

	kernelFlags := wire.FlagsFromPair(in.Flags, in.FlagsHi)
	negotiated := kernelFlags & wire.DefaultFlags

	cfg := newKernelConfig(negotiated, in.MaxReadahead)
	cfg.offered = kernelFlags
	if err := fs.Init(ctx, rc, cfg); err != nil {
		return out, false, err
	}

	lo, hi := cfg.flags.Pair()
	out = wire.InitOut{
		Major:               major,
		Minor:               minor,
		MaxReadahead:        cfg.maxReadahead,
		Flags:               lo,
		FlagsHi:             hi,
		MaxBackground:       cfg.maxBackground,
		CongestionThreshold: cfg.congestionThreshold,
		MaxWrite:            cfg.maxWrite,
		TimeGranNsec:        cfg.timeGranNsec,
		MaxStackDepth:       cfg.maxStackDepth,
	}
	return out, true, nil
}
