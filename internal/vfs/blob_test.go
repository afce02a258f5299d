package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

func TestPutDeduplicates(t *testing.T) {
	b := vfs.NewBlobStore()
	id1 := b.Put([]byte("same payload"))
	id2 := b.Put([]byte("same payload"))

	assert.Equal(t, id1, id2)
	assert.Equal(t, int64(2), b.Refcount(id1))
}

func TestReleaseReclaimsAtZero(t *testing.T) {
	b := vfs.NewBlobStore()
	id := b.Put([]byte("x"))

	assert.True(t, b.Release(id))
	_, ok := b.Get(id)
	assert.False(t, ok, "refcount reached zero, blob must be reclaimed")
}

func TestRetainExtendsLifetime(t *testing.T) {
	b := vfs.NewBlobStore()
	id := b.Put([]byte("x"))
	assert.True(t, b.Retain(id))
	assert.True(t, b.Release(id))

	data, ok := b.Get(id)
	assert.True(t, ok)
	assert.Equal(t, []byte("x"), data)
}

func TestPinnedNeverReclaimed(t *testing.T) {
	b := vfs.NewBlobStore()
	id := b.PutPinned([]byte("base content"))

	assert.True(t, b.IsPinned(id))
	assert.True(t, b.Release(id))
	assert.True(t, b.Release(id))

	_, ok := b.Get(id)
	assert.True(t, ok)
}

func TestPinUpgradesExistingBlob(t *testing.T) {
	b := vfs.NewBlobStore()
	id := b.Put([]byte("y"))
	assert.Equal(t, id, b.PutPinned([]byte("y")))
	assert.True(t, b.IsPinned(id))

	b.Release(id)
	_, ok := b.Get(id)
	assert.True(t, ok)
}

func TestUnknownIDOperations(t *testing.T) {
	b := vfs.NewBlobStore()
	missing := vfs.ContentIDOf([]byte("never stored"))

	assert.False(t, b.Retain(missing))
	assert.False(t, b.Release(missing))
	assert.False(t, b.IsPinned(missing))
	assert.Equal(t, int64(0), b.Refcount(missing))
	_, ok := b.Get(missing)
	assert.False(t, ok)
}

func TestContentIDIsDeterministic(t *testing.T) {
	assert.Equal(t, vfs.ContentIDOf([]byte("abc")), vfs.ContentIDOf([]byte("abc")))
	assert.NotEqual(t, vfs.ContentIDOf([]byte("abc")), vfs.ContentIDOf([]byte("abd")))
}
