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

package wire

// InitFlags is the 64-bit capability bitmask exchanged during INIT. On the
// wire it is split into a low 32 bits (InitIn.Flags / InitOut.Flags) and a
// high 32 bits (InitIn.FlagsHi / InitOut.FlagsHi); Pair reproduces that
// split and FlagsFromPair reverses it.
type InitFlags uint64

const (
	FlagAsyncRead         InitFlags = 1 << 0
	FlagPosixLocks        InitFlags = 1 << 1
	FlagFileOps           InitFlags = 1 << 2
	FlagAtomicOTrunc       InitFlags = 1 << 3
	FlagExportSupport     InitFlags = 1 << 4
	FlagBigWrites         InitFlags = 1 << 5
	FlagDontMask          InitFlags = 1 << 6
	FlagSpliceWrite       InitFlags = 1 << 7
	FlagSpliceMove        InitFlags = 1 << 8
	FlagSpliceRead        InitFlags = 1 << 9
	FlagFlockLocks        InitFlags = 1 << 10
	FlagHasIoctlDir       InitFlags = 1 << 11
	FlagAutoInvalData     InitFlags = 1 << 12
	FlagDoReaddirplus     InitFlags = 1 << 13
	FlagReaddirplusAuto   InitFlags = 1 << 14
	FlagAsyncDIO          InitFlags = 1 << 15
	FlagWritebackCache    InitFlags = 1 << 16
	FlagNoOpenSupport     InitFlags = 1 << 17
	FlagParallelDirops    InitFlags = 1 << 18
	FlagHandleKillpriv    InitFlags = 1 << 19
	FlagPosixACL          InitFlags = 1 << 20
	FlagAbortError        InitFlags = 1 << 21
	FlagMaxPages          InitFlags = 1 << 22
	FlagCacheSymlinks     InitFlags = 1 << 23
	FlagNoOpendirSupport  InitFlags = 1 << 24
	FlagExplicitInvalData InitFlags = 1 << 25
	FlagMapAlignment      InitFlags = 1 << 26
	FlagSubmounts         InitFlags = 1 << 27
	FlagHandleKillprivV2  InitFlags = 1 << 28
	FlagSetxattrExt       InitFlags = 1 << 29
	FlagInitExt           InitFlags = 1 << 30
	FlagInitReserved      InitFlags = 1 << 31
	FlagSecurityCtx       InitFlags = 1 << 32
	FlagHasInodeDAX       InitFlags = 1 << 33
	FlagCreateSuppGroup   InitFlags = 1 << 34
	FlagHasExpireOnly     InitFlags = 1 << 35
	FlagDirectIOAllowMmap InitFlags = 1 << 36
	FlagPassthrough       InitFlags = 1 << 37
	FlagNoExportSupport   InitFlags = 1 << 38
	FlagHasResendSupport  InitFlags = 1 << 39
	FlagAllowIdmap        InitFlags = 1 << 40
	FlagOverMaxPages      InitFlags = 1 << 41
	FlagRequestTimeout    InitFlags = 1 << 42
)

// Pair splits a 64-bit flag set into the low/high 32-bit halves the wire
// format carries in two separate fields.
func (f InitFlags) Pair() (lo, hi uint32) {
	return uint32(f), uint32(f >> 32)
}

// FlagsFromPair reassembles a 64-bit flag set from the wire's low/high
// halves.
func FlagsFromPair(lo, hi uint32) InitFlags {
	return InitFlags(lo) | InitFlags(hi)<<32
}

// Has reports whether every bit in want is set in f.
func (f InitFlags) Has(want InitFlags) bool {
	return f&want == want
}

// DefaultFlags is the set of capabilities this runtime advertises as
// supported before intersecting with both the kernel's proposal and the
// user's request (§4.4 step 2). It deliberately excludes experimental or
// platform-exotic bits (submounts, security contexts, idmapped mounts);
// a user's init hook may still request them explicitly via KernelConfig.
const DefaultFlags = FlagAsyncRead | FlagBigWrites | FlagAutoInvalData |
	FlagDoReaddirplus | FlagReaddirplusAuto | FlagParallelDirops |
	FlagHandleKillpriv | FlagCacheSymlinks | FlagMaxPages |
	FlagAtomicOTrunc | FlagExportSupport
