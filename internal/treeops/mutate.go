package treeops

import (
	"strings"

	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func validName(name string) error {
	if !nameRe.MatchString(name) {
		return vzerr.New(vzerr.InvalidPath, op+".validName", nil)
	}
	return nil
}

// AddFileEntity creates a new leaf named name under parentPath (the
// latter resolved against cwd), with an accompanying content row set
// to body. A ConstraintError on the entity insert is reported as
// Exists (§4.3).
func (o *Ops) AddFileEntity(cwd, name, parentPath string, body []byte) (Entity, error) {
	if err := validName(name); err != nil {
		return Entity{}, err
	}
	_, parent, err := resolveEntity(o.Store, cwd, parentPath)
	if err != nil {
		return Entity{}, mapNotFound(err)
	}
	if parent.IsLeaf {
		return Entity{}, vzerr.New(vzerr.NotADirectory, op+".AddFileEntity", nil)
	}
	n, err := resolve("/", parent.Path+name)
	if err != nil {
		return Entity{}, err
	}
	now := o.nowMillis()
	rec := vzstore.Entity{
		Path:       n,
		Name:       name,
		IsLeaf:     true,
		ParentPath: toNullString(&parent.Path),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Store.InsertEntity(rec); err != nil {
		return Entity{}, classifyCreate(err)
	}
	if err := o.Store.PutContent(vzstore.Content{LeafPath: n, Content: body}); err != nil {
		return Entity{}, vzerr.New(vzerr.StoreError, op+".AddFileEntity", err)
	}
	out := fromRecord(rec)
	out.Content = body
	return out, nil
}

// AddDirectoryEntity creates a new directory named name under
// parentPath. Identical shape to AddFileEntity but with a trailing "/"
// before normalization, isLeaf false, and no content row.
func (o *Ops) AddDirectoryEntity(cwd, name, parentPath string) (Entity, error) {
	if err := validName(name); err != nil {
		return Entity{}, err
	}
	_, parent, err := resolveEntity(o.Store, cwd, parentPath)
	if err != nil {
		return Entity{}, mapNotFound(err)
	}
	if parent.IsLeaf {
		return Entity{}, vzerr.New(vzerr.NotADirectory, op+".AddDirectoryEntity", nil)
	}
	n, err := resolve("/", parent.Path+name+"/")
	if err != nil {
		return Entity{}, err
	}
	now := o.nowMillis()
	rec := vzstore.Entity{
		Path:       n,
		Name:       name,
		IsLeaf:     false,
		ParentPath: toNullString(&parent.Path),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Store.InsertEntity(rec); err != nil {
		return Entity{}, classifyCreate(err)
	}
	return fromRecord(rec), nil
}

func classifyCreate(err error) error {
	var ce *vzstore.ConstraintError
	if asConstraint(err, &ce) {
		return vzerr.New(vzerr.Exists, op, err)
	}
	return vzerr.New(vzerr.StoreError, op, err)
}

func asConstraint(err error, target **vzstore.ConstraintError) bool {
	ce, ok := err.(*vzstore.ConstraintError)
	if ok {
		*target = ce
	}
	return ok
}

// DeleteLeafEntity removes a leaf and its content row.
func (o *Ops) DeleteLeafEntity(cwd, p string) error {
	n, e, err := resolveEntity(o.Store, cwd, p)
	if err != nil {
		return mapNotFound(err)
	}
	if !e.IsLeaf {
		return vzerr.New(vzerr.NotALeaf, op+".DeleteLeafEntity", nil)
	}
	if err := o.Store.DeleteEntity(n); err != nil {
		return vzerr.New(vzerr.StoreError, op+".DeleteLeafEntity", err)
	}
	if err := o.Store.DeleteContent(n); err != nil {
		return vzerr.New(vzerr.StoreError, op+".DeleteLeafEntity", err)
	}
	return nil
}

// DeleteDirectoryIfEmpty removes a directory if it has no children. It
// refuses to remove the root, and refuses to remove any prefix of cwd
// (you cannot delete the directory you or another command is sitting
// in).
func (o *Ops) DeleteDirectoryIfEmpty(cwd, p string) error {
	n, e, err := resolveEntity(o.Store, cwd, p)
	if err != nil {
		return mapNotFound(err)
	}
	if e.IsLeaf {
		return vzerr.New(vzerr.NotADirectory, op+".DeleteDirectoryIfEmpty", nil)
	}
	if n == "/" {
		return vzerr.New(vzerr.InvalidPath, op+".DeleteDirectoryIfEmpty", nil)
	}
	cwdN, err := resolve("/", cwd)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(cwdN, "/") {
		cwdN += "/"
	}
	if strings.HasPrefix(cwdN, n) {
		return vzerr.New(vzerr.InvalidPath, op+".DeleteDirectoryIfEmpty", nil)
	}
	count, err := o.Store.CountChildren(n)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".DeleteDirectoryIfEmpty", err)
	}
	if count != 0 {
		return vzerr.New(vzerr.NotEmpty, op+".DeleteDirectoryIfEmpty", nil)
	}
	if err := o.Store.DeleteEntity(n); err != nil {
		return vzerr.New(vzerr.StoreError, op+".DeleteDirectoryIfEmpty", err)
	}
	return nil
}

// EmptyDirectory deletes every descendant of a directory (not the
// directory itself) and, best-effort, the content rows of any leaves
// among them.
func (o *Ops) EmptyDirectory(cwd, p string) error {
	n, e, err := resolveEntity(o.Store, cwd, p)
	if err != nil {
		return mapNotFound(err)
	}
	if e.IsLeaf {
		return vzerr.New(vzerr.NotADirectory, op+".EmptyDirectory", nil)
	}
	count, err := o.Store.CountChildren(n)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".EmptyDirectory", err)
	}
	if count == 0 {
		return vzerr.New(vzerr.AlreadyEmpty, op+".EmptyDirectory", nil)
	}
	descendants, err := o.Store.EntitiesByPrefix(n, n+upperBound, false)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".EmptyDirectory", err)
	}
	var leafPaths []string
	for _, d := range descendants {
		if d.IsLeaf {
			leafPaths = append(leafPaths, d.Path)
		}
		if err := o.Store.DeleteEntity(d.Path); err != nil {
			return vzerr.New(vzerr.StoreError, op+".EmptyDirectory", err)
		}
	}
	// Best-effort: a leaf whose content row fails to delete here is
	// picked up by a later sweep; invariant 5 is restored eventually,
	// not necessarily within this call.
	_ = o.Store.DeleteContentBatch(leafPaths)
	return nil
}

// UpdateFile overwrites a leaf's content and bumps its updatedAt.
func (o *Ops) UpdateFile(cwd, p string, body []byte) error {
	n, err := resolve(cwd, p)
	if err != nil {
		return err
	}
	e, err := o.Store.GetEntity(n)
	if err != nil {
		return mapNotFound(err)
	}
	if !e.IsLeaf {
		return vzerr.New(vzerr.NotALeaf, op+".UpdateFile", nil)
	}
	e.UpdatedAt = o.nowMillis()
	if err := o.Store.UpdateEntity(e); err != nil {
		return vzerr.New(vzerr.StoreError, op+".UpdateFile", err)
	}
	if err := o.Store.PutContent(vzstore.Content{LeafPath: n, Content: body}); err != nil {
		return vzerr.New(vzerr.StoreError, op+".UpdateFile", err)
	}
	return nil
}

// UpdateFileTimestamp bumps a leaf's updatedAt without touching content.
func (o *Ops) UpdateFileTimestamp(cwd, p string) error {
	n, err := resolve(cwd, p)
	if err != nil {
		return err
	}
	e, err := o.Store.GetEntity(n)
	if err != nil {
		return mapNotFound(err)
	}
	if !e.IsLeaf {
		return vzerr.New(vzerr.NotALeaf, op+".UpdateFileTimestamp", nil)
	}
	e.UpdatedAt = o.nowMillis()
	if err := o.Store.UpdateEntity(e); err != nil {
		return vzerr.New(vzerr.StoreError, op+".UpdateFileTimestamp", err)
	}
	return nil
}
