// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package osmem

import "golang.org/x/sys/unix"

const (
	mapPopulate  = unix.MAP_POPULATE
	mapNoReserve = unix.MAP_NORESERVE
)
