package vfs

import (
	"sort"
	"strings"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// BaseImage is the read-only, shared file tree every server overlay
// shadows. It is immutable once the world finishes building.
type BaseImage struct {
	store *BlobStore

	entries  map[string]model.Entry
	children map[string]map[string]bool // dir path -> child names
}

// NewBaseImage returns an empty base image backed by store.
func NewBaseImage(store *BlobStore) *BaseImage {
	img := &BaseImage{
		store:    store,
		entries:  make(map[string]model.Entry),
		children: make(map[string]map[string]bool),
	}
	img.entries["/"] = model.Entry{Kind: model.KindDir}
	img.children["/"] = make(map[string]bool)
	return img
}

// materializeAncestors ensures every ancestor directory of p exists,
// creating them as needed.
func (img *BaseImage) materializeAncestors(p string) {
	parent := model.ParentPath(p)
	for {
		if _, ok := img.entries[parent]; ok {
			break
		}
		img.entries[parent] = model.Entry{Kind: model.KindDir}
		if img.children[parent] == nil {
			img.children[parent] = make(map[string]bool)
		}
		if parent == "/" {
			break
		}
		grandparent := model.ParentPath(parent)
		if img.children[grandparent] == nil {
			img.children[grandparent] = make(map[string]bool)
		}
		img.children[grandparent][model.BaseName(parent)] = true
		parent = grandparent
	}
}

// AddDir adds a directory (and its ancestors) to the base image.
func (img *BaseImage) AddDir(p string) {
	p = model.NormalizePath(p, "/")
	img.materializeAncestors(p)
	if _, ok := img.entries[p]; !ok {
		img.entries[p] = model.Entry{Kind: model.KindDir}
		img.children[p] = make(map[string]bool)
	}
	parent := model.ParentPath(p)
	if p != "/" {
		img.children[parent][model.BaseName(p)] = true
	}
}

// AddFile adds a file to the base image, storing its bytes in the blob
// store. pin defaults to true per the base image's normal usage (shared,
// never reclaimed); callers that want refcounted base content can pass
// false.
func (img *BaseImage) AddFile(p string, data []byte, kind model.FileKind, pin bool) {
	p = model.NormalizePath(p, "/")
	img.materializeAncestors(p)

	var id model.ContentID
	if pin {
		id = img.store.PutPinned(data)
	} else {
		id = img.store.Put(data)
	}

	img.entries[p] = model.Entry{
		Kind:      model.KindFile,
		FileKind:  kind,
		ContentID: id,
		Size:      int64(len(data)),
	}

	parent := model.ParentPath(p)
	img.children[parent][model.BaseName(p)] = true
}

// Resolve returns the entry at an already-normalized path, if any.
func (img *BaseImage) Resolve(p string) (model.Entry, bool) {
	e, ok := img.entries[p]
	return e, ok
}

// ListChildren returns the sorted child names of a base-image directory.
func (img *BaseImage) ListChildren(dir string) []string {
	kids := img.children[dir]
	names := make([]string, 0, len(kids))
	for name := range kids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Find returns every base-image path under root whose base name contains
// substring.
func (img *BaseImage) Find(root, substring string) []string {
	var out []string
	for p := range img.entries {
		if !strings.HasPrefix(p, root) {
			continue
		}
		if root != "/" && p != root && !strings.HasPrefix(p, root+"/") {
			continue
		}
		if strings.Contains(model.BaseName(p), substring) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// ReadText returns the decoded UTF-8 text of a base-image text file.
func (img *BaseImage) ReadText(p string) (string, bool) {
	e, ok := img.entries[p]
	if !ok || e.Kind != model.KindFile {
		return "", false
	}
	data, ok := img.store.Get(e.ContentID)
	if !ok {
		return "", false
	}
	return string(data), true
}
