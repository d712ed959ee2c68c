// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// debugChecks gates every assertion that is sound to skip in a
// production build but catches programmer error during development:
// sealed-handle-scope enforcement, escape-scope level checks, and the
// lock-ordering validator in internal/lockorder. It defaults to true;
// a host process that has validated its integration can turn expensive
// checks off with SetDebugChecks(false), the way a language runtime's
// race/invariant checks are compiled out of release builds rather than
// toggled at runtime. Here it is a runtime switch because this is a
// library embedded in someone else's binary, not a standalone runtime.
var debugChecks = true

// SetDebugChecks enables or disables debugChecks-gated assertions.
func SetDebugChecks(enabled bool) { debugChecks = enabled }
