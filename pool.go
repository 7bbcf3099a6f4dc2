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
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/vanadiumfs/fused/wire"
)

// readBufSize is sized for the largest frame the kernel can send: a WRITE
// request carrying up to maxWriteCeiling bytes of payload plus its fixed
// header and wire.WriteIn.
const readBufSize = wire.HeaderInSize + 512 + maxWriteCeiling

// pool runs workers workers, each blocking on its own Channel.Read call and
// feeding frames to the shared Dispatcher. In shared-FD mode (the default)
// every worker reads from the same *Channel; cloned-FD mode (Linux only)
// gives each worker its own /dev/fuse handle cloned from the first, letting
// the kernel load-balance reads across them instead of every worker racing
// on one fd, mirroring hanwen's _MAX_READERS "always keep a reader
// available" pool sizing.
type pool struct {
	session  *Session
	workers  int
	clonedFD bool
}

func newPool(s *Session, workers int, clonedFD bool) *pool {
	if workers < 1 {
		workers = 1
	}
	return &pool{session: s, workers: workers, clonedFD: clonedFD}
}

func (p *pool) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var cloned []*Channel
	if p.clonedFD && p.workers > 1 {
		cloned = make([]*Channel, p.workers)
		for i := 1; i < p.workers; i++ {
			ch, err := OpenClonedDevFuse(p.session.channel.FD())
			if err != nil {
				// Cloning isn't available (non-Linux, or a kernel too old
				// for FUSE_DEV_IOC_CLONE): every worker falls back to the
				// shared master fd instead of failing the whole session.
				dbg := debugLogger()
				if dbg != nil {
					dbg.Printf("pool: clone fd for worker %d: %v; falling back to shared fd", i, err)
				}
				cloned = nil
				break
			}
			cloned[i] = ch
		}
	}

	for i := 0; i < p.workers; i++ {
		i := i
		name := fmt.Sprintf("fuser-%d", i)
		ch := p.session.channel
		if cloned != nil && cloned[i] != nil {
			ch = cloned[i]
		}
		g.Go(func() error {
			return p.worker(ctx, name, ch)
		})
	}

	err := g.Wait()
	for _, ch := range cloned {
		if ch != nil && ch != p.session.channel {
			ch.Close()
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// worker repeatedly reads one frame, dispatches it, and writes the reply,
// until the channel reports EOF (clean shutdown) or a read/write error that
// is not one of the expected transient cases. ch is either the session's
// shared master channel (shared-FD mode) or a dedicated clone of it
// (cloned-FD mode, §4.6); replies are always written through the device fd
// the frame itself was read from.
func (p *pool) worker(ctx context.Context, name string, ch *Channel) error {
	buf := make([]byte, readBufSize)
	dbg := debugLogger()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := ch.Read(buf)
		if err != nil {
			if errors.Is(err, errDeviceClosed) || errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("fused: %s: read: %w", name, err)
		}

		reply, err := p.session.dispatcher.Dispatch(ctx, buf[:n])
		if err != nil {
			if dbg != nil {
				dbg.Printf("%s: dispatch error: %v", name, err)
			}
			continue
		}
		if reply == nil {
			// No-reply opcode (FORGET, BATCH_FORGET, INTERRUPT).
			continue
		}

		if err := reply.Write(ch.FD()); err != nil {
			return fmt.Errorf("fused: %s: write reply: %w", name, err)
		}
	}
}
