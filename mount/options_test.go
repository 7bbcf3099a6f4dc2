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

package mount

import "testing"

func TestCheckConflictsNoConflict(t *testing.T) {
	opts := []Option{ReadOnly, AllowRoot, NoDev, NoSuid, NoAtime}
	if err := CheckConflicts(opts); err != nil {
		t.Fatalf("CheckConflicts(%v) = %v, want nil", opts, err)
	}
}

func TestCheckConflictsPairs(t *testing.T) {
	cases := [][2]Option{
		{AllowOther, AllowRoot},
		{Dev, NoDev},
		{Suid, NoSuid},
		{ReadOnly, ReadWrite},
		{Exec, NoExec},
		{Atime, NoAtime},
		{Sync, Async},
	}
	for _, c := range cases {
		opts := []Option{c[0], c[1]}
		if err := CheckConflicts(opts); err == nil {
			t.Errorf("CheckConflicts(%v) = nil, want a conflict error", opts)
		}
	}
}

func TestCheckConflictsEmpty(t *testing.T) {
	if err := CheckConflicts(nil); err != nil {
		t.Fatalf("CheckConflicts(nil) = %v, want nil", err)
	}
}

func TestCheckConflictsSingleOption(t *testing.T) {
	for o := ReadOnly; o <= Async; o++ {
		if err := CheckConflicts([]Option{o}); err != nil {
			t.Errorf("CheckConflicts([%v]) = %v, want nil", o, err)
		}
	}
}

func TestOptionString(t *testing.T) {
	cases := map[Option]string{
		ReadOnly:           "ro",
		ReadWrite:          "rw",
		AllowOther:         "allow_other",
		DefaultPermissions: "default_permissions",
		DirSync:            "dirsync",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("Option(%d).String() = %q, want %q", o, got, want)
		}
	}
}

func TestOptionStringUnknown(t *testing.T) {
	if got := Option(1000).String(); got != "unknown" {
		t.Fatalf("Option(1000).String() = %q, want %q", got, "unknown")
	}
}
