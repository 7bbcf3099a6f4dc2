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

//go:build !linux

package backingioctl

import "golang.org/x/sys/unix"

// Open never succeeds outside Linux: kernel passthrough backing ids are a
// Linux-only FUSE extension.
func Open(devFD int, hostFd int) (uint32, error) {
	return 0, unix.ENOTSUP
}

// Close mirrors Open's unavailability.
func Close(devFD int, id uint32) error {
	return unix.ENOTSUP
}

// Clone mirrors Open's unavailability: FUSE_DEV_IOC_CLONE is Linux-only.
func Clone(newFD int, masterFD int) error {
	return unix.ENOTSUP
}
