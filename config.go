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

import "github.com/vanadiumfs/fused/mount"

// MountConfig collects everything a Session needs besides the filesystem
// implementation itself: mount options forwarded to the mount collaborator
// and worker-pool sizing. It is built with functional options, following
// the teacher's own MountConfig struct.
type MountConfig struct {
	FSName  string
	Subtype string
	Options []mount.Option

	// Workers is the number of worker goroutines dispatching requests
	// concurrently (§4.6). Zero or one means the pool runs a single worker
	// goroutine.
	Workers int

	// ClonedFD selects cloned-FD worker mode (§4.6): each worker beyond the
	// first opens its own /dev/fuse handle cloned from the session's via
	// FUSE_DEV_IOC_CLONE (Linux only) instead of all workers reading the
	// same fd. If cloning fails — non-Linux, or a kernel too old for the
	// ioctl — the pool falls back to shared-FD mode rather than failing
	// the session. Ignored when Workers<=1.
	ClonedFD bool
}

// Option mutates a MountConfig during construction.
type Option func(*MountConfig)

// NewMountConfig builds a MountConfig from the given options, validating
// the accumulated mount option set for conflicts (§6) before returning.
func NewMountConfig(opts ...Option) (*MountConfig, error) {
	cfg := &MountConfig{Workers: 1}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := mount.CheckConflicts(cfg.Options); err != nil {
		return nil, err
	}
	return cfg, nil
}

func WithFSName(name string) Option { return func(c *MountConfig) { c.FSName = name } }
func WithSubtype(subtype string) Option { return func(c *MountConfig) { c.Subtype = subtype } }
func WithMountOptions(o ...mount.Option) Option {
	return func(c *MountConfig) { c.Options = append(c.Options, o...) }
}
func WithWorkers(n int) Option {
	return func(c *MountConfig) {
		if n < 1 {
			n = 1
		}
		c.Workers = n
	}
}
func WithClonedFD(enabled bool) Option { return func(c *MountConfig) { c.ClonedFD = enabled } }
