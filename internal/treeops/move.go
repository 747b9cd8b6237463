package treeops

import (
	"strings"

	"github.com/dvanderweele/vzfs/internal/vzerr"
	"github.com/dvanderweele/vzfs/internal/vzstore"
)

// RenameFile moves a leaf to a new name within the same parent.
//
// Because path is the primary key, this is a delete-then-insert
// sequence that cannot be made atomic across the two statements the
// way a single transaction would be. Spec §9's preferred
// re-implementation is followed here: probe the destination
// (parentPath, newName) pair for a collision before any destructive
// step, so a rename that will fail with Exists never deletes the
// original row in the first place.
func (o *Ops) RenameFile(cwd, p, newName string) error {
	if err := validName(newName); err != nil {
		return err
	}
	n, err := resolve(cwd, p)
	if err != nil {
		return err
	}
	leaf, err := o.Store.GetEntity(n)
	if err != nil {
		return mapNotFound(err)
	}
	if !leaf.IsLeaf {
		return vzerr.New(vzerr.NotALeaf, op+".RenameFile", nil)
	}
	parent, err := o.Store.GetEntity(leaf.ParentPath.String)
	if err != nil {
		return mapNotFound(err)
	}
	newPath, err := resolve("/", parent.Path+newName)
	if err != nil {
		return err
	}
	if newPath == leaf.Path {
		return nil
	}
	collisions, err := o.Store.CountByParentAndName(leaf.ParentPath, newName)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".RenameFile", err)
	}
	if collisions > 0 {
		return vzerr.New(vzerr.Exists, op+".RenameFile", nil)
	}

	oldContent, err := o.Store.GetContent(leaf.Path)
	hadContent := err == nil
	if err != nil && err != vzstore.ErrNotFound {
		return vzerr.New(vzerr.StoreError, op+".RenameFile", err)
	}

	if err := o.Store.DeleteEntity(leaf.Path); err != nil {
		return vzerr.New(vzerr.StoreError, op+".RenameFile", err)
	}
	if err := o.Store.DeleteContent(leaf.Path); err != nil {
		return vzerr.New(vzerr.StoreError, op+".RenameFile", err)
	}

	newRec := leaf
	newRec.Path = newPath
	newRec.Name = newName
	newRec.UpdatedAt = o.nowMillis()
	if err := o.Store.InsertEntity(newRec); err != nil {
		// The probe above should have ruled this out; if the store
		// still rejects it (a concurrent writer slipped in despite the
		// held lock, or a non-uniqueness store error), restore the
		// original row rather than leave the tree without this leaf.
		_ = o.Store.InsertEntity(leaf)
		if hadContent {
			_ = o.Store.PutContent(oldContent)
		}
		return classifyCreate(err)
	}
	if hadContent {
		oldContent.LeafPath = newPath
		if err := o.Store.PutContent(oldContent); err != nil {
			return vzerr.New(vzerr.StoreError, op+".RenameFile", err)
		}
	}
	return nil
}

// ReparentLeaf moves a leaf to a new parent directory, keeping its
// name. Same probe-before-delete discipline as RenameFile.
func (o *Ops) ReparentLeaf(cwd, p, newParentPath string) error {
	n, err := resolve(cwd, p)
	if err != nil {
		return err
	}
	leaf, err := o.Store.GetEntity(n)
	if err != nil {
		return mapNotFound(err)
	}
	if !leaf.IsLeaf {
		return vzerr.New(vzerr.NotALeaf, op+".ReparentLeaf", nil)
	}
	_, newParent, err := resolveEntity(o.Store, cwd, newParentPath)
	if err != nil {
		return mapNotFound(err)
	}
	if newParent.IsLeaf {
		return vzerr.New(vzerr.NotADirectory, op+".ReparentLeaf", nil)
	}
	newPath, err := resolve("/", newParent.Path+leaf.Name)
	if err != nil {
		return err
	}
	if newPath == leaf.Path {
		return nil
	}
	collisions, err := o.Store.CountByParentAndName(toNullString(&newParent.Path), leaf.Name)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".ReparentLeaf", err)
	}
	if collisions > 0 {
		return vzerr.New(vzerr.Exists, op+".ReparentLeaf", nil)
	}

	oldContent, err := o.Store.GetContent(leaf.Path)
	hadContent := err == nil
	if err != nil && err != vzstore.ErrNotFound {
		return vzerr.New(vzerr.StoreError, op+".ReparentLeaf", err)
	}

	if err := o.Store.DeleteEntity(leaf.Path); err != nil {
		return vzerr.New(vzerr.StoreError, op+".ReparentLeaf", err)
	}
	if err := o.Store.DeleteContent(leaf.Path); err != nil {
		return vzerr.New(vzerr.StoreError, op+".ReparentLeaf", err)
	}

	newRec := leaf
	newRec.Path = newPath
	newRec.ParentPath = toNullString(&newParent.Path)
	newRec.UpdatedAt = o.nowMillis()
	if err := o.Store.InsertEntity(newRec); err != nil {
		_ = o.Store.InsertEntity(leaf)
		if hadContent {
			_ = o.Store.PutContent(oldContent)
		}
		return classifyCreate(err)
	}
	if hadContent {
		oldContent.LeafPath = newPath
		if err := o.Store.PutContent(oldContent); err != nil {
			return vzerr.New(vzerr.StoreError, op+".ReparentLeaf", err)
		}
	}
	return nil
}

// TransplantAncestors moves an entire subtree (everything under
// oldParentPath, not oldParentPath itself) so that it hangs under
// newParentPath instead. Safe only because the caller holds a lock on
// the greatest common prefix of the two paths for the whole call
// (§4.5): no external writer can observe the subtree half-moved.
//
// The cursor walks entities in ascending path order -- a pre-order walk
// of the subtree under a lexicographic range scan -- and for each one
// rewrites both path and (when it lies under the subtree root)
// parentPath in the same iteration, so no entity is ever left with a
// path that disagrees with its parentPath even transiently within this
// loop (open question resolved in SPEC_FULL.md).
func (o *Ops) TransplantAncestors(cwd, oldParentPath, newParentPath string) error {
	oldN, oldParent, err := resolveEntity(o.Store, cwd, oldParentPath)
	if err != nil {
		return mapNotFound(err)
	}
	newN, newParent, err := resolveEntity(o.Store, cwd, newParentPath)
	if err != nil {
		return mapNotFound(err)
	}
	if oldParent.IsLeaf {
		return vzerr.New(vzerr.NotADirectory, op+".TransplantAncestors", nil)
	}
	if newParent.IsLeaf {
		return vzerr.New(vzerr.NotADirectory, op+".TransplantAncestors", nil)
	}
	if strings.HasPrefix(newN, oldN) {
		return vzerr.New(vzerr.InvalidPath, op+".TransplantAncestors", nil)
	}

	descendants, err := o.Store.EntitiesByPrefix(oldN, oldN+upperBound, false)
	if err != nil {
		return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
	}
	now := o.nowMillis()
	for _, d := range descendants {
		newPath := newN + strings.TrimPrefix(d.Path, oldN)
		newParentPathForD := d.ParentPath
		if d.ParentPath.Valid && strings.HasPrefix(d.ParentPath.String, oldN) {
			rewritten := newN + strings.TrimPrefix(d.ParentPath.String, oldN)
			newParentPathForD = toNullString(&rewritten)
		}
		updated := d
		updated.Path = newPath
		updated.ParentPath = newParentPathForD
		updated.UpdatedAt = now

		if d.IsLeaf {
			c, err := o.Store.GetContent(d.Path)
			hadContent := err == nil
			if err != nil && err != vzstore.ErrNotFound {
				return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
			}
			if err := o.Store.DeleteContent(d.Path); err != nil {
				return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
			}
			if hadContent {
				c.LeafPath = newPath
				if err := o.Store.PutContent(c); err != nil {
					return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
				}
			}
		}
		if err := o.Store.DeleteEntity(d.Path); err != nil {
			return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
		}
		if err := o.Store.InsertEntity(updated); err != nil {
			return vzerr.New(vzerr.StoreError, op+".TransplantAncestors", err)
		}
	}
	return nil
}
