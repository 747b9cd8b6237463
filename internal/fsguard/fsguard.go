// Package fsguard implements the resolve/lock/conflict-check/execute/
// release sequence every path-addressed VZFS operation follows (§4.5's
// "per-command pattern"), shared between the Operator's command
// dispatcher and the synchronous billyfs adapter so the two front-ends
// cannot drift apart on lock discipline.
package fsguard

import (
	"time"

	"github.com/dvanderweele/vzfs/internal/lockmgr"
)

// WithLock resolves path against cwd, acquires a lock covering it for
// duration (lockmgr.DefaultDuration if zero), rejects on any
// overlapping-ancestor lock, runs fn with the normalized path, and
// releases the lock in a guaranteed-final step regardless of fn's
// outcome -- steps 2 through 6 of §4.5's per-command pattern.
func WithLock(lm *lockmgr.Manager, cwd, path string, duration time.Duration, fn func(resolved string) error) error {
	prefix, err := lm.LockPath(cwd, path, duration)
	if err != nil {
		return err
	}
	defer lm.RemoveLock(prefix)

	if err := lm.RejectIfConflictingPrefixes(cwd, []string{prefix}, true); err != nil {
		return err
	}
	return fn(prefix)
}

// WithTwoPathLock is WithLock's counterpart for operations touching two
// subtrees (rename, reparent, transplant): the lock prefix is the
// greatest common prefix of the two normalized paths, so one lock
// covers both for the whole call (§4.5 "Two-path locking").
func WithTwoPathLock(lm *lockmgr.Manager, cwd, pathA, pathB string, duration time.Duration, fn func() error) error {
	gcp := lockmgr.GreatestCommonPrefix(pathA, pathB)
	prefix, err := lm.LockPath(cwd, gcp, duration)
	if err != nil {
		return err
	}
	defer lm.RemoveLock(prefix)

	if err := lm.RejectIfConflictingPrefixes(cwd, []string{prefix}, true); err != nil {
		return err
	}
	return fn()
}
