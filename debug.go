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
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"fuse.debug",
	false,
	"Write fused debugging messages to stderr.")

var gDebugLogger *log.Logger
var gErrorLogger *log.Logger
var gLoggerOnce sync.Once

const logFlags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile

func initLoggers() {
	var w io.Writer = io.Discard
	if flag.Parsed() && *fEnableDebug {
		w = os.Stderr
	}
	gDebugLogger = log.New(w, "fused: ", logFlags)
	gErrorLogger = log.New(os.Stderr, "fused: ", logFlags)
}

// debugLogger returns the process-wide debug logger, enabled only when
// -fuse.debug was passed. Every Session shares it; there is no per-session
// log file.
func debugLogger() *log.Logger {
	gLoggerOnce.Do(initLoggers)
	return gDebugLogger
}

// errorLogger returns the process-wide error logger. Unlike the debug
// logger it always writes to stderr: session-fatal and background errors
// (§7) are never silent.
func errorLogger() *log.Logger {
	gLoggerOnce.Do(initLoggers)
	return gErrorLogger
}
