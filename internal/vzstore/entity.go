package vzstore

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned by Get* primitives when no row matches the
// given key. It is distinct from a ConstraintError and from any other
// store failure (§7's StoreError bucket).
var ErrNotFound = errors.New("vzstore: not found")

// Entity is the row shape of the entity object store (§3).
type Entity struct {
	Path       string
	Name       string
	IsLeaf     bool
	ParentPath sql.NullString
	CreatedAt  int64
	UpdatedAt  int64
}

// GetEntity fetches the entity at the given primary key path.
func (s *Store) GetEntity(path string) (Entity, error) {
	var e Entity
	err := s.txn(true, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT path, name, is_leaf, parent_path, created_at, updated_at FROM entity WHERE path = ?`, path)
		var isLeaf int64
		if err := row.Scan(&e.Path, &e.Name, &isLeaf, &e.ParentPath, &e.CreatedAt, &e.UpdatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		e.IsLeaf = isLeaf != 0
		return nil
	})
	if err != nil {
		return Entity{}, err
	}
	return e, nil
}

// InsertEntity inserts a new entity row. A ConstraintError means the
// (parentPath, name) pair, or the path itself, already exists.
func (s *Store) InsertEntity(e Entity) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO entity (path, name, is_leaf, parent_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.Path, e.Name, boolToInt(e.IsLeaf), e.ParentPath, e.CreatedAt, e.UpdatedAt)
		return classify(err)
	})
}

// UpdateEntity replaces an existing entity row's mutable fields
// (everything but path, which is the primary key and only ever changes
// via delete-then-insert in RenameFile/ReparentLeaf/TransplantAncestors).
func (s *Store) UpdateEntity(e Entity) error {
	return s.txn(false, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE entity SET name = ?, is_leaf = ?, parent_path = ?, created_at = ?, updated_at = ? WHERE path = ?`,
			e.Name, boolToInt(e.IsLeaf), e.ParentPath, e.CreatedAt, e.UpdatedAt, e.Path)
		if err != nil {
			return classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteEntity removes the entity row at path. Not finding it is not an
// error: callers that need existence checked already did so with
// GetEntity before calling this.
func (s *Store) DeleteEntity(path string) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM entity WHERE path = ?`, path)
		return err
	})
}

// CountByParentAndName returns the number of entities with the given
// (parentPath, name) pair -- used to probe a rename/reparent
// destination for a collision before any destructive step, per the
// preferred re-implementation in spec §9 (probe before delete, rather
// than delete-then-insert-then-maybe-rollback).
func (s *Store) CountByParentAndName(parentPath sql.NullString, name string) (int, error) {
	var n int
	err := s.txn(true, func(tx *sql.Tx) error {
		if parentPath.Valid {
			return tx.QueryRow(`SELECT COUNT(*) FROM entity WHERE parent_path = ? AND name = ?`, parentPath.String, name).Scan(&n)
		}
		return tx.QueryRow(`SELECT COUNT(*) FROM entity WHERE parent_path IS NULL AND name = ?`, name).Scan(&n)
	})
	return n, err
}

// CountChildren returns the number of entities whose parent_path equals
// path, used by deleteDirectoryIfEmpty and emptyDirectory.
func (s *Store) CountChildren(path string) (int, error) {
	var n int
	err := s.txn(true, func(tx *sql.Tx) error {
		return tx.QueryRow(`SELECT COUNT(*) FROM entity WHERE parent_path = ?`, path).Scan(&n)
	})
	return n, err
}

// ImmediateChildKeys returns the paths of entities whose parent_path
// equals path, the query behind getImmediateChildKeys.
func (s *Store) ImmediateChildKeys(path string) ([]string, error) {
	var keys []string
	err := s.txn(true, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT path FROM entity WHERE parent_path = ? ORDER BY path`, path)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			keys = append(keys, p)
		}
		return rows.Err()
	})
	return keys, err
}

// EntitiesByPrefix returns every entity whose path lies in the
// half-open range [lower, upper), ordered by path ascending -- the
// analogue of an IndexedDB getAll() over a key range, and of the
// ascending-path cursor walk TransplantAncestors relies on.
//
// lowerInclusive controls whether lower itself is included, so callers
// can express both getEntitiesByPrefix's inclusive range (the directory
// itself is part of its own prefix range) and emptyDirectory's and
// transplantAncestors's exclusive one (the directory/subtree root is
// excluded so it is not touched by the subtree walk).
func (s *Store) EntitiesByPrefix(lower, upper string, lowerInclusive bool) ([]Entity, error) {
	var out []Entity
	err := s.txn(true, func(tx *sql.Tx) error {
		query := `SELECT path, name, is_leaf, parent_path, created_at, updated_at FROM entity WHERE path `
		if lowerInclusive {
			query += `>= ? AND path < ? ORDER BY path`
		} else {
			query += `> ? AND path < ? ORDER BY path`
		}
		rows, err := tx.Query(query, lower, upper)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e Entity
			var isLeaf int64
			if err := rows.Scan(&e.Path, &e.Name, &isLeaf, &e.ParentPath, &e.CreatedAt, &e.UpdatedAt); err != nil {
				return err
			}
			e.IsLeaf = isLeaf != 0
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
