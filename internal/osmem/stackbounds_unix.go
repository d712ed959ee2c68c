// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build (linux || darwin) && cgo

package osmem

/*
#include <pthread.h>

// stack_bounds fills *base and *size with the current thread's stack
// region. On Linux it goes through pthread_getattr_np; on Darwin
// there is no getattr_np, only the addr/size accessors, which is why
// the two are split here rather than shared.
static int stack_bounds(void **base, unsigned long *size) {
#if defined(__linux__)
	pthread_attr_t attr;
	if (pthread_getattr_np(pthread_self(), &attr) != 0) {
		return -1;
	}
	size_t sz;
	int rc = pthread_attr_getstack(&attr, base, &sz);
	*size = (unsigned long)sz;
	pthread_attr_destroy(&attr);
	return rc;
#elif defined(__APPLE__)
	void *top = pthread_get_stackaddr_np(pthread_self());
	size_t sz = pthread_get_stacksize_np(pthread_self());
	// pthread_get_stackaddr_np returns the stack's high address; the
	// caller wants the low address.
	*base = (void *)((char *)top - sz);
	*size = (unsigned long)sz;
	return 0;
#else
	return -1;
#endif
}
*/
import "C"

import (
	"errors"
	"unsafe"
)

// StackBounds returns the [low, high) address range of the calling
// OS thread's stack, the walk bound for conservative scanning. It
// must be called on the thread being scanned.
func StackBounds() (low, high uintptr, err error) {
	var base unsafe.Pointer
	var size C.ulong
	if rc := C.stack_bounds((*unsafe.Pointer)(&base), &size); rc != 0 {
		return 0, 0, errors.New("osmem: stack_bounds failed")
	}
	lo := uintptr(base)
	return lo, lo + uintptr(size), nil
}
