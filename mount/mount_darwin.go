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

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// Config collects everything the macOS mount collaborator needs to build a
// mount_macfuse option string, per SPEC_FULL.md §6.
type Config struct {
	FSName  string
	Subtype string
	Options []Option
}

func (c Config) optionString() string {
	var parts []string
	if c.FSName != "" {
		parts = append(parts, "fsname="+c.FSName)
	}
	if c.Subtype != "" {
		parts = append(parts, "subtype="+c.Subtype)
	}
	for _, o := range c.Options {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, ",")
}

var errNoAvailDevice = errors.New("mount: no available macfuse devices")
var errKextNotLoaded = errors.New("mount: macfuse kext is not loaded")

func openMacFUSEDevice() (*os.File, error) {
	for i := 0; ; i++ {
		path := fmt.Sprintf("/dev/macfuse%d", i)
		dev, err := os.OpenFile(path, os.O_RDWR, 0)
		if os.IsNotExist(err) {
			if i == 0 {
				return nil, errKextNotLoaded
			}
			return nil, errNoAvailDevice
		}
		if perr, ok := err.(*os.PathError); ok && perr.Err == unix.EBUSY {
			continue
		}
		return dev, err
	}
}

// Acquire opens a macfuse device and hands it to the mount_macfuse helper,
// which performs the actual mount(2) call with root privilege. Acquire
// blocks until the helper has either completed the mount or failed.
func Acquire(dir string, cfg Config) (fd int, err error) {
	if err := CheckConflicts(cfg.Options); err != nil {
		return 0, err
	}

	dev, err := openMacFUSEDevice()
	if err == errKextNotLoaded {
		dev, err = openMacFUSEDevice()
	}
	if err != nil {
		return 0, fmt.Errorf("mount: open macfuse device: %w", err)
	}

	if err := callMountHelper(dir, cfg, dev); err != nil {
		dev.Close()
		return 0, fmt.Errorf("mount: mount_macfuse: %w", err)
	}

	return int(dev.Fd()), nil
}

func callMountHelper(dir string, cfg Config, dev *os.File) error {
	const bin = "/Library/Filesystems/macfuse.fs/Contents/Resources/mount_macfuse"

	for _, o := range cfg.Options {
		if strings.Contains(o.String(), ",") {
			return fmt.Errorf("mount option %q cannot contain a comma on darwin", o)
		}
	}

	cmd := exec.Command(bin, "-o", cfg.optionString(), "3", dir)
	cmd.ExtraFiles = []*os.File{dev}
	cmd.Env = append(os.Environ(), "MOUNT_FUSEFS_CALL_BY_LIB=")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimRight(out.Bytes(), "\n")
		if len(msg) > 0 {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Release unmounts the filesystem at dir using the standard umount(8)
// binary; macfuse has no separate busy-retry protocol beyond what umount
// itself reports.
func Release(dir string) error {
	cmd := exec.Command("umount", dir)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	err := cmd.Run()
	if errBuf.Len() > 0 {
		return fmt.Errorf("mount: umount %q: %s (%w)", dir, errBuf.String(), err)
	}
	return err
}
