// Package vfs implements the content-addressed virtual filesystem: a
// shared immutable blob store and base image, and the per-server
// copy-on-write overlay built on top of them. Everything here is mutated
// only by the world thread, so nothing locks.
package vfs

import (
	"github.com/cespare/xxhash/v2"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

type blobEntry struct {
	data     []byte
	refcount int64
	pinned   bool
}

// BlobStore is a deduplicated content-addressed payload store.
type BlobStore struct {
	blobs map[model.ContentID]*blobEntry
}

// NewBlobStore returns an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[model.ContentID]*blobEntry)}
}

// ContentIDOf computes the deterministic content id for bytes without
// storing them.
func ContentIDOf(data []byte) model.ContentID {
	return model.ContentID(xxhash.Sum64(data))
}

// Put stores bytes (deduplicating identical payloads) and increments its
// refcount unless the blob is pinned, returning the content id.
func (b *BlobStore) Put(data []byte) model.ContentID {
	id := ContentIDOf(data)
	e, ok := b.blobs[id]
	if !ok {
		e = &blobEntry{data: append([]byte(nil), data...)}
		b.blobs[id] = e
	}
	if !e.pinned {
		e.refcount++
	}
	return id
}

// PutPinned stores bytes and marks the blob non-reclaimable regardless of
// refcount.
func (b *BlobStore) PutPinned(data []byte) model.ContentID {
	id := ContentIDOf(data)
	e, ok := b.blobs[id]
	if !ok {
		e = &blobEntry{data: append([]byte(nil), data...)}
		b.blobs[id] = e
	}
	e.pinned = true
	return id
}

// Retain increments a blob's refcount (e.g. when cp duplicates a reference).
// Returns false for an unknown id; never panics.
func (b *BlobStore) Retain(id model.ContentID) bool {
	e, ok := b.blobs[id]
	if !ok {
		return false
	}
	if !e.pinned {
		e.refcount++
	}
	return true
}

// Release decrements a blob's refcount, reclaiming it once it reaches zero.
// Pinned entries are no-ops (still returns true if the id exists). Returns
// false for an unknown id.
func (b *BlobStore) Release(id model.ContentID) bool {
	e, ok := b.blobs[id]
	if !ok {
		return false
	}
	if e.pinned {
		return true
	}
	e.refcount--
	if e.refcount <= 0 {
		delete(b.blobs, id)
	}
	return true
}

// Get returns a blob's bytes, or nil, false if unknown.
func (b *BlobStore) Get(id model.ContentID) ([]byte, bool) {
	e, ok := b.blobs[id]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// IsPinned reports whether id is pinned. Unknown ids report false.
func (b *BlobStore) IsPinned(id model.ContentID) bool {
	e, ok := b.blobs[id]
	return ok && e.pinned
}

// Refcount returns a blob's current refcount (0 for an unknown id).
func (b *BlobStore) Refcount(id model.ContentID) int64 {
	e, ok := b.blobs[id]
	if !ok {
		return 0
	}
	return e.refcount
}
