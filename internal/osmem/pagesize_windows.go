// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package osmem

import "golang.org/x/sys/windows"

// PageSize returns the OS allocation granularity via GetSystemInfo.
func PageSize() uintptr {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	if info.PageSize == 0 {
		return 4096
	}
	return uintptr(info.PageSize)
}
