package vfs

import (
	"sort"
	"strings"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// dirDelta is a directory's overlay bookkeeping, kept neutral (absent
// from the map entirely) whenever both sets are empty.
type dirDelta struct {
	added   map[string]bool
	removed map[string]bool
}

// Overlay is a single server's copy-on-write layer over a shared
// BaseImage: one map per concern (entries, tombstones, directory deltas),
// reconciled on every write.
type Overlay struct {
	base  *BaseImage
	store *BlobStore

	entries    map[string]model.Entry
	tombstones map[string]bool
	deltas     map[string]*dirDelta
}

// NewOverlay returns an empty overlay over base, backed by store.
func NewOverlay(base *BaseImage, store *BlobStore) *Overlay {
	return &Overlay{
		base:       base,
		store:      store,
		entries:    make(map[string]model.Entry),
		tombstones: make(map[string]bool),
		deltas:     make(map[string]*dirDelta),
	}
}

// Resolve applies the tombstone > overlay > base merge rule.
func (o *Overlay) Resolve(p string) (model.Entry, bool) {
	if o.tombstones[p] {
		return model.Entry{}, false
	}
	if e, ok := o.entries[p]; ok {
		return e, true
	}
	return o.base.Resolve(p)
}

// Stat is an alias for Resolve, named to match the handler vocabulary.
func (o *Overlay) Stat(p string) (model.Entry, bool) {
	return o.Resolve(p)
}

func (o *Overlay) hasBaseChild(dir, name string) bool {
	for _, c := range o.base.ListChildren(dir) {
		if c == name {
			return true
		}
	}
	return false
}

func (o *Overlay) delta(dir string) *dirDelta {
	d, ok := o.deltas[dir]
	if !ok {
		d = &dirDelta{added: make(map[string]bool), removed: make(map[string]bool)}
		o.deltas[dir] = d
	}
	return d
}

func (o *Overlay) pruneNeutral(dir string) {
	d, ok := o.deltas[dir]
	if !ok {
		return
	}
	if len(d.added) == 0 && len(d.removed) == 0 {
		delete(o.deltas, dir)
	}
}

// recordAdd applies the reconciliation rules for a name becoming
// present: a name that exists in base is simply un-hidden; a
// name absent from base is recorded as added.
func (o *Overlay) recordAdd(dir, name string) {
	d := o.delta(dir)
	if o.hasBaseChild(dir, name) {
		delete(d.removed, name)
	} else {
		d.added[name] = true
	}
	o.pruneNeutral(dir)
}

// recordRemove applies the reconciliation rules for a name becoming
// absent: a base name is hidden via `removed`; an overlay-only name is
// simply erased from `added`.
func (o *Overlay) recordRemove(dir, name string) {
	d := o.delta(dir)
	if o.hasBaseChild(dir, name) {
		delete(d.added, name)
		d.removed[name] = true
	} else {
		delete(d.added, name)
	}
	o.pruneNeutral(dir)
}

// ListChildren computes (base children ∪ added) \ removed, then drops any
// name whose merged entry no longer resolves.
func (o *Overlay) ListChildren(dir string) []string {
	set := make(map[string]bool)
	for _, c := range o.base.ListChildren(dir) {
		set[c] = true
	}
	if d, ok := o.deltas[dir]; ok {
		for name := range d.added {
			set[name] = true
		}
		for name := range d.removed {
			delete(set, name)
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		childPath := model.JoinPath(dir, name)
		if _, ok := o.Resolve(childPath); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AddDir creates a directory at p. The parent must already resolve as a
// directory.
func (o *Overlay) AddDir(p string) error {
	if _, ok := o.Resolve(p); ok {
		return model.ErrAlreadyExists
	}

	parent := model.ParentPath(p)
	if p != "/" {
		parentEntry, ok := o.Resolve(parent)
		if !ok {
			return model.ErrNotFound
		}
		if !parentEntry.IsDir() {
			return model.ErrNotDirectory
		}
	}

	o.entries[p] = model.Entry{Kind: model.KindDir}
	delete(o.tombstones, p)
	if p != "/" {
		o.recordAdd(parent, model.BaseName(p))
	}
	return nil
}

// WriteFile creates or overwrites a file at p with the given bytes and
// kind. The parent must resolve as a directory; a prior
// overlay content id at p is released before the new one is installed.
func (o *Overlay) WriteFile(p string, data []byte, kind model.FileKind) error {
	parent := model.ParentPath(p)
	if p != "/" {
		parentEntry, ok := o.Resolve(parent)
		if !ok {
			return model.ErrNotFound
		}
		if !parentEntry.IsDir() {
			return model.ErrNotDirectory
		}
	}

	if existing, ok := o.Resolve(p); ok && existing.IsDir() {
		return model.ErrIsDirectory
	}

	if prior, ok := o.entries[p]; ok && prior.IsFile() {
		o.store.Release(prior.ContentID)
	}

	id := o.store.Put(data)
	o.entries[p] = model.Entry{
		Kind:      model.KindFile,
		FileKind:  kind,
		ContentID: id,
		Size:      int64(len(data)),
	}
	delete(o.tombstones, p)
	if p != "/" {
		o.recordAdd(parent, model.BaseName(p))
	}
	return nil
}

// InstallContentID is like WriteFile but installs an already-retained
// content id directly, for cp's "retain then install" contract without a redundant blob round trip.
func (o *Overlay) InstallContentID(p string, id model.ContentID, kind model.FileKind, size int64) error {
	parent := model.ParentPath(p)
	if p != "/" {
		parentEntry, ok := o.Resolve(parent)
		if !ok {
			return model.ErrNotFound
		}
		if !parentEntry.IsDir() {
			return model.ErrNotDirectory
		}
	}
	if existing, ok := o.Resolve(p); ok && existing.IsDir() {
		return model.ErrIsDirectory
	}
	if prior, ok := o.entries[p]; ok && prior.IsFile() {
		o.store.Release(prior.ContentID)
	}

	o.entries[p] = model.Entry{Kind: model.KindFile, FileKind: kind, ContentID: id, Size: size}
	delete(o.tombstones, p)
	if p != "/" {
		o.recordAdd(parent, model.BaseName(p))
	}
	return nil
}

// Delete removes a single entry at p. Deleting a
// non-empty directory fails with ErrConflict; callers wanting recursive
// delete should use DeleteSubtree.
func (o *Overlay) Delete(p string) error {
	if p == "/" {
		return model.ErrRootForbidden
	}

	cur, ok := o.Resolve(p)
	if !ok {
		return model.ErrNotFound
	}
	if cur.IsDir() && len(o.ListChildren(p)) > 0 {
		return model.ErrConflict
	}

	if prior, ok := o.entries[p]; ok && prior.IsFile() {
		o.store.Release(prior.ContentID)
	}
	delete(o.entries, p)

	if _, baseOk := o.base.Resolve(p); baseOk {
		o.tombstones[p] = true
	} else {
		delete(o.tombstones, p)
	}

	parent := model.ParentPath(p)
	o.recordRemove(parent, model.BaseName(p))
	return nil
}

// DeleteSubtree recursively removes p and everything beneath it. Deleting root is forbidden.
func (o *Overlay) DeleteSubtree(p string) error {
	if p == "/" {
		return model.ErrRootForbidden
	}

	cur, ok := o.Resolve(p)
	if !ok {
		return model.ErrNotFound
	}

	if cur.IsDir() {
		for _, name := range o.ListChildren(p) {
			if err := o.DeleteSubtree(model.JoinPath(p, name)); err != nil {
				return err
			}
		}
	}

	if prior, ok := o.entries[p]; ok && prior.IsFile() {
		o.store.Release(prior.ContentID)
	}
	delete(o.entries, p)

	if _, baseOk := o.base.Resolve(p); baseOk {
		o.tombstones[p] = true
	} else {
		delete(o.tombstones, p)
	}

	parent := model.ParentPath(p)
	o.recordRemove(parent, model.BaseName(p))
	return nil
}

// ReadText returns the UTF-8 text of a text file.
func (o *Overlay) ReadText(p string) (string, error) {
	e, ok := o.Resolve(p)
	if !ok {
		return "", model.ErrNotFound
	}
	if e.IsDir() {
		return "", model.ErrIsDirectory
	}
	if e.FileKind != model.FileKindText && e.FileKind != model.FileKindExecutableScript {
		return "", model.ErrNotTextFile
	}
	data, ok := o.store.Get(e.ContentID)
	if !ok {
		return "", model.ErrNotFound
	}
	return string(data), nil
}

// ReadBytes returns a file's raw bytes regardless of kind, for binary/image
// rendering.
func (o *Overlay) ReadBytes(p string) ([]byte, error) {
	e, ok := o.Resolve(p)
	if !ok {
		return nil, model.ErrNotFound
	}
	if e.IsDir() {
		return nil, model.ErrIsDirectory
	}
	data, ok := o.store.Get(e.ContentID)
	if !ok {
		return nil, model.ErrNotFound
	}
	return data, nil
}

// Find returns merged-view paths under root whose base name contains
// substring.
func (o *Overlay) Find(root, substring string) []string {
	seen := make(map[string]bool)
	var out []string

	var walk func(dir string)
	walk = func(dir string) {
		if seen[dir] {
			return
		}
		seen[dir] = true
		if strings.Contains(model.BaseName(dir), substring) && dir != root {
			out = append(out, dir)
		}
		for _, name := range o.ListChildren(dir) {
			childPath := model.JoinPath(dir, name)
			if strings.Contains(name, substring) {
				out = append(out, childPath)
			}
			if e, ok := o.Resolve(childPath); ok && e.IsDir() {
				walk(childPath)
			}
		}
	}
	walk(root)

	sort.Strings(out)
	return out
}

// EntrySnapshot is one overlay entry captured for a save. Content is populated for file entries only; its
// bytes are re-interned into the blob store on restore rather than relying
// on a content id that may not exist in a freshly loaded store.
type EntrySnapshot struct {
	Path     string
	Kind     model.EntryKind
	FileKind model.FileKind
	Content  []byte
}

// DirDeltaSnapshot is one directory's added/removed bookkeeping captured
// for a save.
type DirDeltaSnapshot struct {
	Dir     string
	Added   []string
	Removed []string
}

// OverlaySnapshot is everything a server's overlay needs to be rebuilt
// exactly, independent of the live BlobStore's internal ids.
type OverlaySnapshot struct {
	Entries    []EntrySnapshot
	Tombstones []string
	Deltas     []DirDeltaSnapshot
}

// Snapshot captures the overlay's state for save/restore.
func (o *Overlay) Snapshot() OverlaySnapshot {
	paths := make([]string, 0, len(o.entries))
	for p := range o.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]EntrySnapshot, 0, len(paths))
	for _, p := range paths {
		e := o.entries[p]
		es := EntrySnapshot{Path: p, Kind: e.Kind, FileKind: e.FileKind}
		if e.IsFile() {
			data, _ := o.store.Get(e.ContentID)
			es.Content = append([]byte(nil), data...)
		}
		entries = append(entries, es)
	}

	tombstones := make([]string, 0, len(o.tombstones))
	for p := range o.tombstones {
		tombstones = append(tombstones, p)
	}
	sort.Strings(tombstones)

	dirs := make([]string, 0, len(o.deltas))
	for dir := range o.deltas {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	deltas := make([]DirDeltaSnapshot, 0, len(dirs))
	for _, dir := range dirs {
		d := o.deltas[dir]
		ds := DirDeltaSnapshot{Dir: dir}
		for name := range d.added {
			ds.Added = append(ds.Added, name)
		}
		for name := range d.removed {
			ds.Removed = append(ds.Removed, name)
		}
		sort.Strings(ds.Added)
		sort.Strings(ds.Removed)
		deltas = append(deltas, ds)
	}

	return OverlaySnapshot{Entries: entries, Tombstones: tombstones, Deltas: deltas}
}

// RestoreOverlay rebuilds an overlay from a captured snapshot, re-interning
// file content into store so the restored overlay is valid against it
// regardless of what ids that store previously assigned.
func RestoreOverlay(base *BaseImage, store *BlobStore, snap OverlaySnapshot) *Overlay {
	o := NewOverlay(base, store)

	for _, es := range snap.Entries {
		if es.Kind == model.KindDir {
			o.entries[es.Path] = model.Entry{Kind: model.KindDir}
			continue
		}
		id := store.Put(es.Content)
		o.entries[es.Path] = model.Entry{
			Kind:      model.KindFile,
			FileKind:  es.FileKind,
			ContentID: id,
			Size:      int64(len(es.Content)),
		}
	}

	for _, p := range snap.Tombstones {
		o.tombstones[p] = true
	}

	for _, ds := range snap.Deltas {
		d := o.delta(ds.Dir)
		for _, name := range ds.Added {
			d.added[name] = true
		}
		for _, name := range ds.Removed {
			d.removed[name] = true
		}
	}

	return o
}

// FindText searches readable text files under root for a literal substring
// in their contents, returning matching paths.
func (o *Overlay) FindText(root, substring string) []string {
	var out []string

	var walk func(dir string)
	walk = func(dir string) {
		for _, name := range o.ListChildren(dir) {
			childPath := model.JoinPath(dir, name)
			e, ok := o.Resolve(childPath)
			if !ok {
				continue
			}
			if e.IsDir() {
				walk(childPath)
				continue
			}
			if text, err := o.ReadText(childPath); err == nil && strings.Contains(text, substring) {
				out = append(out, childPath)
			}
		}
	}
	walk(root)

	sort.Strings(out)
	return out
}
