// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

// Small object size classes.
//
// Unlike a general-purpose malloc, the collector only needs a short
// geometric ladder: one TLAB and one page set per class, chosen so
// that an allocation of n bytes wastes at most ~2x versus the next
// smaller class. A finer ladder (as in a full malloc implementation)
// buys less here because every class already carries its own TLAB and
// page set, and BiBOP resolution only cares that a page belongs to
// exactly one class.

// sizeClasses is the block-size ladder. Index 0 is unused so that a
// sizeClass of 0 can mean "not small", a reserved sentinel class.
var sizeClasses = [...]uint32{
	0,
	16, 32, 64, 128, 256, 512, 1024, 2048,
}

const numSizeClasses = len(sizeClasses)

// maxSmallSize is the largest allocation request (header + payload)
// handled by a size-class page, equal to the last entry of
// sizeClasses. Anything larger goes to the large-object path.
const maxSmallSize = 2048

// sizeClassFor returns the smallest size class whose block size is
// >= n, or 0 if n exceeds maxSmallSize.
func sizeClassFor(n uintptr) uint8 {
	if uintptr(maxSmallSize) < n {
		return 0
	}
	for i := 1; i < numSizeClasses; i++ {
		if uintptr(sizeClasses[i]) >= n {
			return uint8(i)
		}
	}
	return 0
}

// blockSize returns the block size of a size class, as allocated
// (header + payload, rounded up).
func blockSize(class uint8) uint32 {
	return sizeClasses[class]
}

// roundupSize returns the size of the memory block that alloc will
// actually hand out for a request of n bytes: the block size of the
// chosen size class, or n rounded up to the page size for large
// objects.
func roundupSize(n uintptr) uintptr {
	if class := sizeClassFor(n); class != 0 {
		return uintptr(blockSize(class))
	}
	return roundUp(n, uintptr(pageSize()))
}

func roundUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}
