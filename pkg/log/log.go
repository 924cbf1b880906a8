// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to the standard log package
// with some extensions:
//   - verbosity levels
//   - global verbosity setting that can be used by multiple packages
//   - one-shot warnings for invariant violations that must not spam output
package log

import (
	"flag"
	golog "log"
	"sync"
)

var (
	flagV = flag.Int("kcov.vv", 0, "kcov log verbosity")
	mu    sync.Mutex
)

// Logf prints msg if the global verbosity is at least v.
func Logf(v int, msg string, args ...interface{}) {
	mu.Lock()
	doLog := v <= *flagV
	mu.Unlock()
	if doLog {
		golog.Printf(msg, args...)
	}
}

// Warningf always prints, regardless of verbosity; it is the equivalent of
// the kernel's pr_warn for recoverable invariant violations.
func Warningf(msg string, args ...interface{}) {
	golog.Printf("WARNING: "+msg, args...)
}

var (
	onceMu   sync.Mutex
	warnedOn = make(map[string]bool)
)

// WarnOnce prints a warning the first time it is called with a given key,
// and is silent on every subsequent call with the same key. This mirrors
// the kernel's WARN_ON/WARN_ONCE used for invariant violations that must
// not be allowed to flood the log on a hot path (e.g. a merge observing a
// corrupted buffer count on every call).
func WarnOnce(key, msg string, args ...interface{}) {
	onceMu.Lock()
	if warnedOn[key] {
		onceMu.Unlock()
		return
	}
	warnedOn[key] = true
	onceMu.Unlock()
	Warningf(msg, args...)
}

// Fatalf logs and terminates the process, matching the teacher's log.Fatalf.
func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}
