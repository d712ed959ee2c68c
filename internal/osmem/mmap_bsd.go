// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || freebsd || netbsd || openbsd

package osmem

// MAP_POPULATE and MAP_NORESERVE are Linux-only; on BSD-family kernels
// there is no equivalent flag, so Populate/NoReserve degrade to plain
// demand-paged anonymous mappings.
const (
	mapPopulate  = 0
	mapNoReserve = 0
)
