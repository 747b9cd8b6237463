package vzstore

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".vzfs.db"

// DSNFor returns the sqlite DSN for the named filesystem under dir.
func DSNFor(dir, name string) string {
	return filepath.Join(dir, name+fileExt)
}

// ListFilesystems enumerates the databases visible under dir -- not
// every store backend can do this (§4.6 says to return an empty list
// when unsupported); sqlite-on-disk always can.
func ListFilesystems(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errorf("vzstore.ListFilesystems", "reading %q: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), fileExt) {
			names = append(names, strings.TrimSuffix(e.Name(), fileExt))
		}
	}
	return names, nil
}

// DropFilesystem deletes the named database file outright.
func DropFilesystem(dir, name string) error {
	path := DSNFor(dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errorf("vzstore.DropFilesystem", "removing %q: %v", path, err)
	}
	return nil
}

// Exists reports whether a database file for name already exists under
// dir -- restoreFilesystemFromJSON refuses when it does (§4.6).
func Exists(dir, name string) bool {
	_, err := os.Stat(DSNFor(dir, name))
	return err == nil
}

// AllEntities returns every entity row, for ripFilesystemToJSON.
func (s *Store) AllEntities() ([]Entity, error) {
	var out []Entity
	err := s.txn(true, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT path, name, is_leaf, parent_path, created_at, updated_at FROM entity ORDER BY path`)
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

// AllContent returns every content row, for ripFilesystemToJSON.
func (s *Store) AllContent() ([]Content, error) {
	var out []Content
	err := s.txn(true, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT leaf_path, content FROM content ORDER BY leaf_path`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c Content
			if err := rows.Scan(&c.LeafPath, &c.Content); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// PutEntitiesBatch, PutContentBatch and PutLocksBatch load backup
// records verbatim into a freshly-created database, for
// restoreFilesystemFromJSON. They run as one transaction per object
// store, a cursor-based batch update over a single object store as
// §4.2 describes.
func (s *Store) PutEntitiesBatch(rows []Entity) error {
	return s.txn(false, func(tx *sql.Tx) error {
		for _, e := range rows {
			if _, err := tx.Exec(`INSERT INTO entity (path, name, is_leaf, parent_path, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				e.Path, e.Name, boolToInt(e.IsLeaf), e.ParentPath, e.CreatedAt, e.UpdatedAt); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func (s *Store) PutContentBatch(rows []Content) error {
	return s.txn(false, func(tx *sql.Tx) error {
		for _, c := range rows {
			if _, err := tx.Exec(`INSERT INTO content (leaf_path, content) VALUES (?, ?)`, c.LeafPath, c.Content); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

func (s *Store) PutLocksBatch(rows []Lock) error {
	return s.txn(false, func(tx *sql.Tx) error {
		for _, l := range rows {
			if _, err := tx.Exec(`INSERT INTO lock (path_prefix, expiry, created_at) VALUES (?, ?, ?)`,
				l.PathPrefix, l.Expiry, l.CreatedAt); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}
