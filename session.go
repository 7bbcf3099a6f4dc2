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
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vanadiumfs/fused/mount"
)

// Session owns one mounted filesystem end to end: the channel, the
// dispatcher, and the worker pool that drives it. A Session is built by
// Mount and torn down by Unmount; it is not reused across mountpoints.
type Session struct {
	mountpoint string
	cfg        *MountConfig
	channel    *Channel
	dispatcher *Dispatcher
	pool       *pool
	notifier   *Notifier
	backing    *backingRegistry

	mu    sync.Mutex
	state sessionState
}

// Notifier returns the out-of-band cache-invalidation collaborator for
// this session (§4.7).
func (s *Session) Notifier() *Notifier { return s.notifier }

// Mount acquires a kernel FD for dir via the platform mount collaborator,
// negotiates nothing yet (that happens on the first INIT, inside Run), and
// returns a Session ready to be run.
func Mount(dir string, fs FileSystem, cfg *MountConfig) (*Session, error) {
	if cfg == nil {
		var err error
		cfg, err = NewMountConfig()
		if err != nil {
			return nil, err
		}
	}

	fd, err := mount.Acquire(dir, mount.Config{
		FSName:  cfg.FSName,
		Subtype: cfg.Subtype,
		Options: cfg.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("fused: mount %q: %w", dir, err)
	}

	ch, err := OpenDevFuse(fd)
	if err != nil {
		return nil, fmt.Errorf("fused: open device: %w", err)
	}

	s := &Session{
		mountpoint: dir,
		cfg:        cfg,
		channel:    ch,
		dispatcher: NewDispatcher(fs),
		state:      stateCreated,
	}
	s.pool = newPool(s, cfg.Workers, cfg.ClonedFD)
	s.notifier = NewNotifier(ch)
	s.backing = newBackingRegistry(ch.FD())
	s.dispatcher.SetBacking(s.backing)
	return s, nil
}

// Run drives the read-dispatch-reply loop until EOF (the kernel tore the
// connection down), an explicit Unmount completes, or a worker hits a
// fatal, non-protocol error. It blocks until the session terminates.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.state = stateInitializing
	s.mu.Unlock()

	err := s.pool.run(ctx)

	s.mu.Lock()
	s.state = stateTerminated
	s.mu.Unlock()

	return err
}

// unmountRetryBase and unmountMaxAttempts implement the growing-delay
// retry hanwen's Unmount() uses: the Nth attempt waits 2*prevDelay+5ms,
// capped at five attempts before giving up.
const (
	unmountRetryBase    = 50 * time.Millisecond
	unmountMaxAttempts  = 5
)

// Unmount signals the session to stop after any in-flight request
// completes and asks the mount collaborator to release the kernel mount.
// finishUnmount is attempted on every call; if the kernel reports the
// mountpoint busy (open files beneath it), Unmount retries with a growing
// delay before giving up and returning the busy error to the caller. The
// session remains valid and Unmount may be called again later.
func (s *Session) Unmount() error {
	s.mu.Lock()
	s.state = stateUnmounting
	s.mu.Unlock()

	var lastErr error
	delay := unmountRetryBase
	for attempt := 0; attempt < unmountMaxAttempts; attempt++ {
		err := s.finishUnmount()
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EBUSY) {
			s.mu.Lock()
			s.state = stateRunning
			s.mu.Unlock()
			return err
		}

		lastErr = err
		if attempt == unmountMaxAttempts-1 {
			break
		}
		time.Sleep(delay)
		delay = 2*delay + 5*time.Millisecond
	}

	s.mu.Lock()
	s.state = stateRunning
	s.mu.Unlock()
	return lastErr
}

func (s *Session) finishUnmount() error {
	if err := mount.Release(s.mountpoint); err != nil {
		return fmt.Errorf("fused: release mount %q: %w", s.mountpoint, err)
	}
	s.notifier.closeNotifier()
	s.backing.CloseAll()
	return s.channel.Close()
}
