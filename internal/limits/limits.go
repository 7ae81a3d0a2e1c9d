// Copyright (c) 2022-2026 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package limits configures the runtime resource limits of the daemon.
package limits

import "runtime/debug"

// DefaultMemoryLimit is the soft memory limit of the daemon.  The registry,
// the payment votes and a mixing session stay well below it.
const DefaultMemoryLimit = 512 * (1 << 20)

// SetMemoryLimit configures the runtime to use limit bytes as a soft memory
// limit and returns the previous limit.  A negative limit leaves the current
// limit unchanged.
func SetMemoryLimit(limit int64) int64 {
	return debug.SetMemoryLimit(limit)
}
