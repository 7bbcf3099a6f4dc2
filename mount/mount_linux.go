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
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// Config collects everything the Linux mount collaborator needs to build a
// fusermount/mount(2) option string, per SPEC_FULL.md §6.
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

// Acquire opens /dev/fuse and mounts it at dir, returning the raw device FD
// the session reads and writes. Root mounts directly via unix.Mount; every
// other caller goes through the setuid fusermount helper, which opens the
// device itself and passes the FD back over a socketpair.
func Acquire(dir string, cfg Config) (fd int, err error) {
	if err := CheckConflicts(cfg.Options); err != nil {
		return 0, err
	}
	if os.Geteuid() == 0 {
		return acquireDirect(dir, cfg)
	}
	return acquireViaFusermount(dir, cfg)
}

// Release unmounts the filesystem at dir. If the mountpoint is still busy
// (open file descriptors under it), Release returns an error and the caller
// may retry once those are closed, matching the session's unmount semantics
// in SPEC_FULL.md §4.5.
func Release(dir string) error {
	busy, err := mountinfo.Mounted(dir)
	if err != nil {
		return fmt.Errorf("mount: stat mountinfo for %q: %w", dir, err)
	}
	if !busy {
		return nil
	}
	if os.Geteuid() == 0 {
		if err := unix.Unmount(dir, 0); err != nil {
			return fmt.Errorf("mount: unmount %q: %w", dir, err)
		}
		return nil
	}
	return unmountViaFusermount(dir)
}

func acquireDirect(dir string, cfg Config) (int, error) {
	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("mount: open /dev/fuse: %w", err)
	}

	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		dev.Close()
		return 0, fmt.Errorf("mount: stat %q: %w", dir, err)
	}

	data := fmt.Sprintf("fd=%d,rootmode=%o,user_id=%d,group_id=%d",
		dev.Fd(), st.Mode&unix.S_IFMT, os.Getuid(), os.Getgid())
	if opts := cfg.optionString(); opts != "" {
		data += "," + opts
	}

	flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV)
	if err := unix.Mount("fuse", dir, "fuse."+cfg.Subtype, flags, data); err != nil {
		if err2 := unix.Mount("fuse", dir, "fuse", flags, data); err2 != nil {
			dev.Close()
			return 0, fmt.Errorf("mount: mount(2) %q: %w", dir, err)
		}
	}

	return int(dev.Fd()), nil
}

func acquireViaFusermount(dir string, cfg Config) (int, error) {
	bin, err := exec.LookPath("fusermount")
	if err != nil {
		return 0, fmt.Errorf("mount: fusermount not found: %w", err)
	}

	local, remote, err := unixgramSocketpair()
	if err != nil {
		return 0, err
	}
	defer local.Close()
	defer remote.Close()

	argv := []string{bin, dir}
	if opts := cfg.optionString(); opts != "" {
		argv = append(argv, "-o", opts)
	}

	proc, err := os.StartProcess(bin, argv, &os.ProcAttr{
		Env:   []string{"_FUSE_COMMFD=3"},
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr, remote},
	})
	if err != nil {
		return 0, fmt.Errorf("mount: start fusermount: %w", err)
	}

	state, err := proc.Wait()
	if err != nil {
		return 0, fmt.Errorf("mount: wait fusermount: %w", err)
	}
	if !state.Success() {
		return 0, fmt.Errorf("mount: fusermount exited with %v", state.Sys())
	}

	return recvDeviceFD(local)
}

func unmountViaFusermount(dir string) error {
	bin, err := exec.LookPath("fusermount")
	if err != nil {
		return fmt.Errorf("mount: fusermount not found: %w", err)
	}

	var errBuf bytes.Buffer
	cmd := exec.Command(bin, "-u", dir)
	cmd.Stderr = &errBuf
	err = cmd.Run()
	if errBuf.Len() > 0 {
		return fmt.Errorf("mount: fusermount -u %q: %s (%w)", dir, errBuf.String(), err)
	}
	return err
}

func unixgramSocketpair() (local, remote *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("mount: socketpair: %w", err)
	}
	return os.NewFile(uintptr(fds[0]), "fuse-commfd-local"),
		os.NewFile(uintptr(fds[1]), "fuse-commfd-remote"), nil
}

// recvDeviceFD reads the single SCM_RIGHTS control message fusermount sends
// back over local, carrying the already-opened /dev/fuse descriptor.
func recvDeviceFD(local *os.File) (int, error) {
	var dummy [4]byte
	oob := make([]byte, unix.CmsgSpace(4))

	_, oobn, _, _, err := unix.Recvmsg(int(local.Fd()), dummy[:], oob, 0)
	if err != nil {
		return 0, fmt.Errorf("mount: recvmsg: %w", err)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, fmt.Errorf("mount: parse control message: %w", err)
	}
	if len(msgs) != 1 {
		return 0, fmt.Errorf("mount: expected 1 control message, got %d", len(msgs))
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return 0, fmt.Errorf("mount: parse unix rights: %w", err)
	}
	if len(fds) != 1 {
		return 0, fmt.Errorf("mount: expected 1 fd, got %d", len(fds))
	}
	if fds[0] < 0 {
		return 0, fmt.Errorf("mount: received negative fd %d", fds[0])
	}

	return fds[0], nil
}
