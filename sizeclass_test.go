// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeClassForPicksSmallestFit(t *testing.T) {
	assert.Equal(t, uint8(1), sizeClassFor(1))
	assert.Equal(t, uint8(1), sizeClassFor(16))
	assert.Equal(t, uint8(2), sizeClassFor(17))
	assert.Equal(t, uint8(8), sizeClassFor(2048))
}

func TestSizeClassForOverflowsToLargeObjectPath(t *testing.T) {
	assert.Equal(t, uint8(0), sizeClassFor(maxSmallSize+1))
}

func TestBlockSizeMatchesLadder(t *testing.T) {
	assert.Equal(t, uint32(64), blockSize(3))
}

func TestRoundupSizeUsesClassForSmall(t *testing.T) {
	assert.Equal(t, uintptr(32), roundupSize(20))
}

func TestRoundupSizeUsesPageForLarge(t *testing.T) {
	got := roundupSize(uintptr(maxSmallSize) + 1)
	assert.Equal(t, uintptr(0), got%uintptr(pageSize()))
	assert.GreaterOrEqual(t, got, uintptr(maxSmallSize)+1)
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, uintptr(16), roundUp(1, 16))
	assert.Equal(t, uintptr(16), roundUp(16, 16))
	assert.Equal(t, uintptr(32), roundUp(17, 16))
}
