// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build (!linux && !darwin && !windows) || (!cgo && (linux || darwin))

package osmem

import "errors"

// StackBounds has no portable, cgo-free implementation on this
// platform. Callers must treat this as "no stack bounds known" and
// fall back to a best-effort no-op: conservative scanning only loses
// root discovery fidelity, it cannot corrupt the heap.
func StackBounds() (low, high uintptr, err error) {
	return 0, 0, errors.New("osmem: stack bounds unsupported on this platform")
}
