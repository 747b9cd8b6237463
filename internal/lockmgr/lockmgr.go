// Package lockmgr implements the VZFS lock manager (L): the
// cross-transaction optimistic locking protocol layered on top of the
// store's single-transaction atomicity (§4.4). It is what lets
// multi-step tree operations be safe against other actor instances
// sharing the same underlying database.
package lockmgr

import (
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	log "github.com/sirupsen/logrus"

	"github.com/dvanderweele/vzfs/internal/pathnorm"
	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

const op = "lockmgr"

// DefaultDuration is used when a command omits durationMs (§6).
const DefaultDuration = 5 * time.Second

// Manager wraps a Store's lock object store with the acquire/release/
// conflict-detection/prune operations of §4.4.
type Manager struct {
	Store *vzstore.Store
	Now   func() time.Time

	mu sync.Mutex
	// queuedForDeletion tracks, within one pruneExpiredLocks sweep, the
	// rowids already handed to a delete batch -- a compact dedupe set so
	// a sweep spanning more than one allSettled batch (§4.4, §7) never
	// issues a second delete for a row it has already queued. Cleared at
	// the start of every sweep.
	queuedForDeletion *roaring.Bitmap
}

// New constructs a Manager bound to store.
func New(store *vzstore.Store) *Manager {
	return &Manager{Store: store, Now: time.Now, queuedForDeletion: roaring.New()}
}

func (m *Manager) nowMillis() int64 { return m.Now().UnixMilli() }

// LockPath normalizes path against cwd and attempts to acquire a lock
// on it for durationMs (DefaultDuration if zero). On ConstraintError --
// the prefix is already locked -- it loads the existing lock and, if
// it has already expired, deletes it and retries exactly once (the
// retry intent spec §9 calls for, which the original implementation
// this is modeled on shipped without). Returns the normalized prefix on
// success.
func (m *Manager) LockPath(cwd, path string, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	prefix, err := pathnorm.Normalize(path, pathnorm.AbsPathToPieces(cwd))
	if err != nil {
		return "", err
	}
	if err := m.acquire(prefix, duration); err != nil {
		if _, ok := err.(*vzstore.ConstraintError); !ok {
			return "", vzerr.New(vzerr.StoreError, op+".LockPath", err)
		}
		existing, getErr := m.Store.GetLock(prefix)
		if getErr != nil {
			// The row disappeared between the failed insert and this
			// read (another actor released or pruned it); the caller
			// can simply retry at its own discretion, so report
			// Contended rather than risk looping here.
			return "", vzerr.New(vzerr.Contended, op+".LockPath", err)
		}
		if existing.Expiry > m.nowMillis() {
			return "", vzerr.New(vzerr.Contended, op+".LockPath", err)
		}
		if delErr := m.Store.DeleteLock(prefix); delErr != nil {
			return "", vzerr.New(vzerr.Contended, op+".LockPath", err)
		}
		if err := m.acquire(prefix, duration); err != nil {
			return "", vzerr.New(vzerr.Contended, op+".LockPath", err)
		}
	}
	return prefix, nil
}

func (m *Manager) acquire(prefix string, duration time.Duration) error {
	now := m.nowMillis()
	return m.Store.InsertLock(vzstore.Lock{
		PathPrefix: prefix,
		Expiry:     now + duration.Milliseconds(),
		CreatedAt:  now,
	})
}

// RemoveLock deletes the lock row for prefix. Release is best-effort:
// any error is logged at debug level and swallowed, per §4.4.
func (m *Manager) RemoveLock(prefix string) {
	if err := m.Store.DeleteLock(prefix); err != nil {
		log.WithField("prefix", prefix).WithError(err).Debug("lockmgr: release failed, ignoring")
	}
}

// RejectIfConflictingPrefixes re-reads the lock table (restricted to
// unexpired rows when unexpiredOnly), excludes justAcquired by exact
// value, and fails if any remaining lock's pathPrefix is a proper
// prefix of any path in justAcquired -- the mechanism that catches an
// overlapping-ancestor lock despite the store only enforcing exact-key
// uniqueness (§4.4).
func (m *Manager) RejectIfConflictingPrefixes(cwd string, justAcquired []string, unexpiredOnly bool) error {
	var rows []vzstore.Lock
	var err error
	if unexpiredOnly {
		rows, err = m.Store.LocksNotExpiredBefore(m.nowMillis())
	} else {
		rows, err = m.Store.AllLocks()
	}
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".RejectIfConflictingPrefixes", err)
	}
	justSet := make(map[string]struct{}, len(justAcquired))
	for _, p := range justAcquired {
		justSet[p] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := justSet[row.PathPrefix]; ok {
			continue
		}
		for _, p := range justAcquired {
			if row.PathPrefix != p && strings.HasPrefix(p, row.PathPrefix) {
				return vzerr.New(vzerr.Contended, op+".RejectIfConflictingPrefixes", nil)
			}
		}
	}
	return nil
}

// SweepResult summarizes one pruneExpiredLocks run, logged the way the
// teacher's control-file diagnostics report operability facts that
// spec.md doesn't name as protocol (SPEC_FULL.md's "idle lock-table
// metrics").
type SweepResult struct {
	Examined int
	Pruned   int
	Skipped  int
}

// PruneExpiredLocks enumerates every lock row with expiry <= now and
// deletes them with allSettled semantics: a failure to delete one row
// does not stop the sweep from attempting the rest (§4.4, §7).
func (m *Manager) PruneExpiredLocks() (SweepResult, error) {
	m.mu.Lock()
	m.queuedForDeletion = roaring.New()
	m.mu.Unlock()

	rows, err := m.Store.LocksExpiringBefore(m.nowMillis())
	if err != nil {
		return SweepResult{}, vzerr.New(vzerr.StoreError, op+".PruneExpiredLocks", err)
	}
	result := SweepResult{Examined: len(rows)}
	var toDelete []string
	m.mu.Lock()
	for _, row := range rows {
		id := uint32(row.RowID)
		if m.queuedForDeletion.Contains(id) {
			result.Skipped++
			continue
		}
		m.queuedForDeletion.Add(id)
		toDelete = append(toDelete, row.PathPrefix)
	}
	m.mu.Unlock()

	errs := m.Store.DeleteLocksBatch(toDelete)
	result.Pruned = len(toDelete) - len(errs)
	for _, e := range errs {
		log.WithError(e).Debug("lockmgr: prune delete failed, leaving for a later sweep")
	}
	log.WithFields(log.Fields{
		"examined": result.Examined,
		"pruned":   result.Pruned,
		"skipped":  result.Skipped,
	}).Debug("lockmgr: sweep complete")
	return result, nil
}

// GreatestCommonPrefix returns the longest common leading substring of
// a and b, used as the lock prefix for two-target operations (rename,
// reparent, transplant) so that one lock covers both subtrees for the
// operation's whole duration (§4.5).
func GreatestCommonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	gcp := a[:i]
	// Never return a prefix that splits a path component in two: back
	// off to the last complete "/"-delimited boundary.
	if idx := strings.LastIndexByte(gcp, '/'); idx >= 0 {
		gcp = gcp[:idx+1]
	} else {
		gcp = "/"
	}
	return gcp
}
