// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || netbsd || openbsd

package osmem

import "golang.org/x/sys/unix"

// PageSize returns the OS page size. The collector's own page size
// is the max of this and 4 KiB, never smaller: a Page is defined as
// "typically the OS page size, minimum 4 KiB".
func PageSize() uintptr {
	return uintptr(unix.Getpagesize())
}
