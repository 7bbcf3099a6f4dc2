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

// Package fused enables writing and mounting user-space file systems.
//
// The primary elements of interest are:
//
//  *  The FileSystem interface, which defines the methods a file system must
//     implement.
//
//  *  UnimplementedFileSystem, which may be embedded to obtain default
//     ENOSYS implementations for every method not of interest to a
//     particular file system.
//
//  *  Mount, which acquires a kernel connection for a mountpoint and returns
//     a Session; Session.Run then drives the read-dispatch-reply loop until
//     Session.Unmount or the kernel tears the connection down.
//
//  *  Session.Notifier, for out-of-band cache invalidation and data push
//     (InvalidateInode, InvalidateEntry, Store) independent of any request
//     the kernel sent.
//
// In order to use this package to mount file systems on OS X, the system
// must have macFUSE installed: https://osxfuse.github.io/
package fused
