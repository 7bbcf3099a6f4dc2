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

// Package mount is the mount collaborator named in SPEC_FULL.md §6: it
// turns a validated option set into a kernel FD (acquire) and later
// releases the mount (release). The platform-specific syscall glue lives
// in mount_linux.go/mount_darwin.go; this file holds the option type and
// the conflict-checking logic that is identical on every platform, ported
// from the original project's mount_options.rs.
package mount

import "fmt"

// Option is one flag the caller may request when mounting. The set is
// closed and fixed by the external interface in SPEC_FULL.md §6.
type Option int

const (
	ReadOnly Option = iota
	ReadWrite
	AllowOther
	AllowRoot
	AutoUnmount
	DefaultPermissions
	Dev
	NoDev
	Suid
	NoSuid
	Exec
	NoExec
	Atime
	NoAtime
	DirSync
	Sync
	Async
)

func (o Option) String() string {
	switch o {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case AllowOther:
		return "allow_other"
	case AllowRoot:
		return "allow_root"
	case AutoUnmount:
		return "auto_unmount"
	case DefaultPermissions:
		return "default_permissions"
	case Dev:
		return "dev"
	case NoDev:
		return "nodev"
	case Suid:
		return "suid"
	case NoSuid:
		return "nosuid"
	case Exec:
		return "exec"
	case NoExec:
		return "noexec"
	case Atime:
		return "atime"
	case NoAtime:
		return "noatime"
	case DirSync:
		return "dirsync"
	case Sync:
		return "sync"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

// conflicts maps each option to the other option it cannot be combined
// with, ported directly from conflicts_with() in the original project's
// mount_options.rs.
var conflicts = map[Option]Option{
	AllowOther: AllowRoot,
	AllowRoot:  AllowOther,
	Dev:        NoDev,
	NoDev:      Dev,
	Suid:       NoSuid,
	NoSuid:     Suid,
	ReadOnly:   ReadWrite,
	ReadWrite:  ReadOnly,
	Exec:       NoExec,
	NoExec:     Exec,
	Atime:      NoAtime,
	NoAtime:    Atime,
	Sync:       Async,
	Async:      Sync,
}

// CheckConflicts walks the requested option set and rejects it if any two
// options conflict, mirroring check_option_conflicts(): every option is
// tested against the full set via a membership check rather than an O(n^2)
// pairwise scan.
func CheckConflicts(opts []Option) error {
	present := make(map[Option]struct{}, len(opts))
	for _, o := range opts {
		present[o] = struct{}{}
	}
	for _, o := range opts {
		bad, ok := conflicts[o]
		if !ok {
			continue
		}
		if _, present := present[bad]; present {
			return fmt.Errorf("mount: conflicting options %q and %q", o, bad)
		}
	}
	return nil
}
