// Package treeops implements the VZFS tree operations (T): the
// multi-step domain operations composed from store primitives (P).
// Every operation here runs outside any single transaction; a caller
// (the Operator) is expected to hold a lock covering the path(s)
// touched for the whole call.
package treeops

import (
	"database/sql"
	"regexp"
	"strings"
	"time"

	"github.com/dvanderweele/vzfs/internal/pathnorm"
	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

const op = "treeops"

// nameRe is the grammar for an entity's bare name (§6): no slashes, no
// dots-only segments beyond what the character class already allows.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Ops composes vzstore.Store calls into the tree's domain operations.
type Ops struct {
	Store *vzstore.Store
	// Now is overridable for tests; defaults to time.Now in New.
	Now func() time.Time
}

// New constructs an Ops bound to store.
func New(store *vzstore.Store) *Ops {
	return &Ops{Store: store, Now: time.Now}
}

func (o *Ops) nowMillis() int64 { return o.Now().UnixMilli() }

// Entity is the resolved, read-facing view of an entity record plus
// (for leaves) its content -- the "file = entity ∪ {content}" shape §6
// describes for readFile.
type Entity struct {
	Path       string
	Name       string
	IsLeaf     bool
	ParentPath *string
	CreatedAt  int64
	UpdatedAt  int64
	Content    []byte // nil for directories, or for leaves with no content row.
}

func fromRecord(e vzstore.Entity) Entity {
	out := Entity{
		Path:      e.Path,
		Name:      e.Name,
		IsLeaf:    e.IsLeaf,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.ParentPath.Valid {
		p := e.ParentPath.String
		out.ParentPath = &p
	}
	return out
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// resolve normalizes p against cwd, wrapping the resulting path in an
// InvalidPath-kinded error on failure (path resolution always happens
// before a path-addressed command can acquire a lock, §4.5).
func resolve(cwd, p string) (string, error) {
	n, err := pathnorm.Normalize(p, pathnorm.AbsPathToPieces(cwd))
	if err != nil {
		return "", err
	}
	return n, nil
}

// resolveEntity normalizes p against cwd and fetches the entity there.
// Normalize folds "." and ".." relative to whatever trailing slash the
// *input* carries, not whether the result happens to name a directory
// (see pathnorm's TestNormalizeRelative), so "." against a cwd of "/sub/"
// normalizes to "/sub" -- one character short of how every directory
// entity is actually keyed. Rather than push that distinction onto
// every caller, the one spot doing the lookup retries with a trailing
// "/" appended whenever the bare path misses, so any path a caller
// believes names an existing entity (leaf or directory) resolves
// correctly regardless of which convention the caller's input used.
func resolveEntity(store *vzstore.Store, cwd, p string) (string, vzstore.Entity, error) {
	n, err := resolve(cwd, p)
	if err != nil {
		return "", vzstore.Entity{}, err
	}
	rec, err := store.GetEntity(n)
	if err == vzstore.ErrNotFound && !strings.HasSuffix(n, "/") {
		if rec2, err2 := store.GetEntity(n + "/"); err2 == nil {
			return n + "/", rec2, nil
		}
	}
	return n, rec, err
}

// GetEntity resolves p against cwd and fetches the entity at that path,
// without its content.
func (o *Ops) GetEntity(cwd, p string) (Entity, error) {
	_, rec, err := resolveEntity(o.Store, cwd, p)
	if err != nil {
		return Entity{}, mapNotFound(err)
	}
	return fromRecord(rec), nil
}

// JoinContentToLeaf fetches the content row for a leaf and folds it
// into the entity view. A missing content row resolves with nil
// content, not an error -- reads stay total (§4.3).
func (o *Ops) JoinContentToLeaf(leaf Entity) (Entity, error) {
	c, err := o.Store.GetContent(leaf.Path)
	if err != nil {
		if err == vzstore.ErrNotFound {
			leaf.Content = nil
			return leaf, nil
		}
		return Entity{}, vzerr.New(vzerr.StoreError, op+".JoinContentToLeaf", err)
	}
	leaf.Content = c.Content
	return leaf, nil
}

// upperBound is the exclusive upper end of a prefix range query: every
// path that starts with the prefix sorts below prefix+upperBound under
// ordinary string ordering, standing in for IndexedDB's unbounded-above
// key range.
const upperBound = "￿"

// GetEntitiesByPrefix resolves p against cwd and returns every entity
// whose path falls in the inclusive range [n, n+upperBound) -- the
// analogue of getAll() over an IndexedDB key range.
func (o *Ops) GetEntitiesByPrefix(cwd, p string) ([]Entity, error) {
	n, err := resolve(cwd, p)
	if err != nil {
		return nil, err
	}
	recs, err := o.Store.EntitiesByPrefix(n, n+upperBound, true)
	if err != nil {
		return nil, vzerr.New(vzerr.StoreError, op+".GetEntitiesByPrefix", err)
	}
	out := make([]Entity, len(recs))
	for i, r := range recs {
		out[i] = fromRecord(r)
	}
	return out, nil
}

// GetImmediateChildKeys resolves p against cwd, verifies it names a
// directory, and returns the paths of its immediate children via the
// parentPath index.
func (o *Ops) GetImmediateChildKeys(cwd, p string) ([]string, error) {
	n, target, err := resolveEntity(o.Store, cwd, p)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if target.IsLeaf {
		return nil, vzerr.New(vzerr.NotADirectory, op+".GetImmediateChildKeys", nil)
	}
	keys, err := o.Store.ImmediateChildKeys(n)
	if err != nil {
		return nil, vzerr.New(vzerr.StoreError, op+".GetImmediateChildKeys", err)
	}
	return keys, nil
}

func mapNotFound(err error) error {
	if err == vzstore.ErrNotFound {
		return vzerr.New(vzerr.NotFound, op, err)
	}
	return vzerr.New(vzerr.StoreError, op, err)
}
