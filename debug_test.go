// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDebugChecksTogglesGlobalFlag(t *testing.T) {
	original := debugChecks
	defer SetDebugChecks(original)

	SetDebugChecks(false)
	assert.False(t, debugChecks)

	SetDebugChecks(true)
	assert.True(t, debugChecks)
}
