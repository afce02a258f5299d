package vfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

func TestAddFileMaterializesAncestors(t *testing.T) {
	store := vfs.NewBlobStore()
	img := vfs.NewBaseImage(store)
	img.AddFile("/opt/tools/crack.js", []byte("// tool"), model.FileKindExecutableScript, true)

	for _, dir := range []string{"/opt", "/opt/tools"} {
		e, ok := img.Resolve(dir)
		require.True(t, ok, dir)
		assert.True(t, e.IsDir(), dir)
	}
	assert.Equal(t, []string{"tools"}, img.ListChildren("/opt"))
}

func TestListChildrenSorted(t *testing.T) {
	store := vfs.NewBlobStore()
	img := vfs.NewBaseImage(store)
	img.AddFile("/etc/zz", []byte("z"), model.FileKindText, true)
	img.AddFile("/etc/aa", []byte("a"), model.FileKindText, true)
	img.AddDir("/etc/mm")

	assert.Equal(t, []string{"aa", "mm", "zz"}, img.ListChildren("/etc"))
}

func TestBaseFileContentIsPinned(t *testing.T) {
	store := vfs.NewBlobStore()
	img := vfs.NewBaseImage(store)
	img.AddFile("/etc/motd", []byte("hi"), model.FileKindText, true)

	e, ok := img.Resolve("/etc/motd")
	require.True(t, ok)
	assert.True(t, store.IsPinned(e.ContentID))
}

func TestFindScopedToRoot(t *testing.T) {
	store := vfs.NewBlobStore()
	img := vfs.NewBaseImage(store)
	img.AddFile("/opt/report.txt", []byte("r"), model.FileKindText, true)
	img.AddFile("/home/report-copy.txt", []byte("r2"), model.FileKindText, true)

	assert.Equal(t, []string{"/opt/report.txt"}, img.Find("/opt", "report"))
	assert.Len(t, img.Find("/", "report"), 2)
}
