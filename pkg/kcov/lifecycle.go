// Copyright 2025 the kcov authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kcov

import (
	"fmt"

	"github.com/xairy/kcov/pkg/log"
)

// TaskExit is the Go-native stand-in for the kernel's kcov_task_exit:
// the runtime (or whatever owns the lifetime of a goroutine using a
// TaskContext) must call this when that goroutine is about to
// terminate, so that a descriptor it was attached to, whether as owner
// or as a remote executor mid-window, does not keep a back-reference to
// a task that no longer exists.
//
// It is a no-op if tc is not currently attached. Otherwise it detaches
// tc, purges the descriptor's registry entries and resets it if the
// descriptor is remote (otherwise just resets it), and always releases
// the one refcount the attachment held.
//
// A remote executor's scratch buffer is not returned to any free list
// here, mirroring kcov_task_exit, which only resets mode/pointers and
// never touches the per-task remote area: an executor that crashes
// mid-window without calling RemoteStop leaks its scratch buffer rather
// than recycling it.
func TaskExit(tc *TaskContext) {
	d := tc.attachedDescriptor()
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.ownerTask != tc {
		log.WarnOnce(fmt.Sprintf("kcov-task-exit-owner-mismatch-%p", d), "kcov: exiting task is not descriptor's recorded owner")
	}
	tc.detach()
	if d.registry != nil && d.remote {
		d.registry.purgeLocked(d)
	} else {
		d.resetLocked()
	}
	d.mu.Unlock()

	d.put()
}
