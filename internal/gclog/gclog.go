// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gclog provides the collector's single logging entry point.
// Every phase transition, fallback, and page-reservation failure goes
// through L(), never through a package-specific *zap.Logger, so a host
// process can redirect or silence collector logging in one place.
package gclog

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	base    *zap.Logger
	sugared atomic.Pointer[zap.SugaredLogger]
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	sugared.Store(l.Sugar())
}

// L returns the process-wide sugared logger every collector component
// uses, following the variadic key-value calling convention
// (l.Debugw("msg", "key", val)) rather than building zap.Field values
// per call site.
func L() *zap.SugaredLogger {
	return sugared.Load()
}

// SetLogger replaces the logger the collector uses, letting a host
// process wire its own zap.Logger in (e.g. to attach request-scoped
// fields or change the output sink). Passing nil restores a no-op
// logger, useful for tests that don't want collector chatter on
// stdout.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	sugared.Store(l.Sugar())
}
