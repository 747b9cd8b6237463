package vzstore

import "database/sql"

// Lock is the row shape of the lock object store (§3).
type Lock struct {
	PathPrefix string
	Expiry     int64
	CreatedAt  int64
	// RowID is sqlite's implicit rowid, exposed so the janitor can keep
	// a compact in-memory seen-set (see internal/lockmgr) without
	// re-hashing the path prefix string on every sweep.
	RowID int64
}

// InsertLock inserts a new lock row. A ConstraintError means pathPrefix
// is already locked -- the "Contended" signal lockPath surfaces.
func (s *Store) InsertLock(l Lock) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO lock (path_prefix, expiry, created_at) VALUES (?, ?, ?)`,
			l.PathPrefix, l.Expiry, l.CreatedAt)
		return classify(err)
	})
}

// GetLock fetches the lock row for pathPrefix, if any.
func (s *Store) GetLock(pathPrefix string) (Lock, error) {
	var l Lock
	err := s.txn(true, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT rowid, path_prefix, expiry, created_at FROM lock WHERE path_prefix = ?`, pathPrefix)
		if err := row.Scan(&l.RowID, &l.PathPrefix, &l.Expiry, &l.CreatedAt); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Lock{}, err
	}
	return l, nil
}

// DeleteLock removes the lock row for pathPrefix. Release is
// best-effort (§4.4): a missing row is not an error.
func (s *Store) DeleteLock(pathPrefix string) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM lock WHERE path_prefix = ?`, pathPrefix)
		return err
	})
}

// LocksExpiringBefore returns every lock row with expiry <= cutoff,
// the query behind pruneExpiredLocks's enumeration over the expiry
// index.
func (s *Store) LocksExpiringBefore(cutoff int64) ([]Lock, error) {
	return s.queryLocks(`SELECT rowid, path_prefix, expiry, created_at FROM lock WHERE expiry <= ? ORDER BY expiry`, cutoff)
}

// LocksNotExpiredBefore returns every lock row with expiry > cutoff,
// used by rejectIfConflictingPrefixes's unexpiredOnly re-read of the
// lock table.
func (s *Store) LocksNotExpiredBefore(cutoff int64) ([]Lock, error) {
	return s.queryLocks(`SELECT rowid, path_prefix, expiry, created_at FROM lock WHERE expiry > ? ORDER BY expiry`, cutoff)
}

// AllLocks returns every lock row, used by rejectIfConflictingPrefixes
// when unexpiredOnly is false and by ripFilesystemToJSON.
func (s *Store) AllLocks() ([]Lock, error) {
	return s.queryLocks(`SELECT rowid, path_prefix, expiry, created_at FROM lock ORDER BY path_prefix`)
}

func (s *Store) queryLocks(query string, args ...interface{}) ([]Lock, error) {
	var out []Lock
	err := s.txn(true, func(tx *sql.Tx) error {
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var l Lock
			if err := rows.Scan(&l.RowID, &l.PathPrefix, &l.Expiry, &l.CreatedAt); err != nil {
				return err
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteLocksBatch best-effort deletes every given lock row by its
// primary key, collecting rather than stopping on individual failures
// -- pruneExpiredLocks's "allSettled" delete (§4.4, §7).
func (s *Store) DeleteLocksBatch(pathPrefixes []string) []error {
	var errs []error
	for _, p := range pathPrefixes {
		if err := s.DeleteLock(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
