// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainAllowsMonotonicAcquisition(t *testing.T) {
	c := NewChain(true)
	assert.NotPanics(t, func() {
		c.Acquire(LocalHeap)
		c.Acquire(GlobalMarkState)
		c.Acquire(GcRequest)
	})
}

func TestChainPanicsOnOutOfOrderAcquisition(t *testing.T) {
	c := NewChain(true)
	c.Acquire(GlobalMarkState)
	assert.Panics(t, func() { c.Acquire(LocalHeap) })
}

func TestChainDisabledNeverPanics(t *testing.T) {
	c := NewChain(false)
	c.Acquire(GcRequest)
	assert.NotPanics(t, func() { c.Acquire(LocalHeap) })
}

func TestChainReleaseLowersWatermark(t *testing.T) {
	c := NewChain(true)
	c.Acquire(GcRequest)
	c.Release(GcRequest)
	assert.NotPanics(t, func() { c.Acquire(GlobalMarkState) })
}

func TestNilChainIsSafe(t *testing.T) {
	var c *Chain
	assert.NotPanics(t, func() {
		c.Acquire(GcRequest)
		c.Release(LocalHeap)
	})
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "LocalHeap", LocalHeap.String())
	assert.Equal(t, "GlobalMarkState", GlobalMarkState.String())
	assert.Equal(t, "GcRequest", GcRequest.String())
}
