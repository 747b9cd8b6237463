package vzstore

import (
	"database/sql"
	"errors"
)

// Content is the row shape of the content object store (§3).
type Content struct {
	LeafPath string
	Content  []byte
}

// GetContent fetches the content row for a leaf path. Returns
// ErrNotFound if absent -- joinContentToLeaf treats that as "no
// content" rather than a failure, but the primitive itself reports it
// faithfully so callers can choose.
func (s *Store) GetContent(leafPath string) (Content, error) {
	var c Content
	err := s.txn(true, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT leaf_path, content FROM content WHERE leaf_path = ?`, leafPath)
		if err := row.Scan(&c.LeafPath, &c.Content); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Content{}, err
	}
	return c, nil
}

// PutContent inserts or replaces the content row for a leaf path.
func (s *Store) PutContent(c Content) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO content (leaf_path, content) VALUES (?, ?)
			ON CONFLICT(leaf_path) DO UPDATE SET content = excluded.content`, c.LeafPath, c.Content)
		return classify(err)
	})
}

// DeleteContent removes the content row for a leaf path, if any.
func (s *Store) DeleteContent(leafPath string) error {
	return s.txn(false, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM content WHERE leaf_path = ?`, leafPath)
		return err
	})
}

// DeleteContentBatch best-effort deletes every leaf path given,
// collecting (not stopping on) individual failures -- the "all
// settled" semantics emptyDirectory's content cleanup requires (§4.3,
// §7): partial progress is acceptable, a subsequent prune or sweep can
// restore invariant 5.
func (s *Store) DeleteContentBatch(leafPaths []string) []error {
	var errs []error
	for _, p := range leafPaths {
		if err := s.DeleteContent(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
