package storage

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/tinytalk/internal/utils"
)

func newMemStore() *FSStore {
	return NewFSStore(afero.NewMemMapFs(), "/uploads/")
}

func TestFSStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	obj, err := s.Put(ctx, "weeks/2025-02-23/image_2.jpg", []byte("two"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "weeks/2025-02-23/image_2.jpg", obj.Path)
	assert.Equal(t, "/uploads/weeks/2025-02-23/image_2.jpg", obj.URL)
	assert.EqualValues(t, 3, obj.Size)
	assert.False(t, obj.ModifiedAt.IsZero())

	_, err = s.Put(ctx, "weeks/2025-02-23/image_1.jpg", []byte("one"), "image/jpeg")
	require.NoError(t, err)
	_, err = s.Put(ctx, "weeks/2025-03-02/video_1.mp4", []byte("vid"), "video/mp4")
	require.NoError(t, err)

	objs, err := s.List(ctx, "weeks/2025-02-23/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "weeks/2025-02-23/image_1.jpg", objs[0].Path)
	assert.Equal(t, "weeks/2025-02-23/image_2.jpg", objs[1].Path)

	all, err := s.List(ctx, "weeks/")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	b, err := s.Get(ctx, "weeks/2025-03-02/video_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "vid", string(b))
}

func TestFSStore_ListMissingPrefixIsEmpty(t *testing.T) {
	objs, err := newMemStore().List(context.Background(), "weeks/2020-01-05/")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestFSStore_ListByExactPathname(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	_, err := s.Put(ctx, "weeks/2025-02-23/theme.json", []byte(`{"theme":"space"}`), "application/json")
	require.NoError(t, err)
	_, err = s.Put(ctx, "weeks/2025-02-23/image_1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)

	obj, ok, err := Find(ctx, s, "weeks/2025-02-23/theme.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "weeks/2025-02-23/theme.json", obj.Locator)

	_, ok, err = Find(ctx, s, "weeks/2025-02-23/image_9.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFSStore_OverwriteIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	_, err := s.Put(ctx, "weeks/2025-02-23/theme.json", []byte("a"), "application/json")
	require.NoError(t, err)
	_, err = s.Put(ctx, "weeks/2025-02-23/theme.json", []byte("bb"), "application/json")
	require.NoError(t, err)

	b, err := s.Get(ctx, "weeks/2025-02-23/theme.json")
	require.NoError(t, err)
	assert.Equal(t, "bb", string(b))
}

func TestFSStore_DeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	_, err := s.Put(ctx, "weeks/2025-02-23/image_1.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "weeks/2025-02-23/image_1.jpg"))
	assert.ErrorIs(t, s.Delete(ctx, "weeks/2025-02-23/image_1.jpg"), utils.ErrNotFound)

	_, err = s.Get(ctx, "weeks/2025-02-23/image_1.jpg")
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestFSStore_PathsCannotEscapeRoot(t *testing.T) {
	assert.Equal(t, "/etc/passwd", fsPath("../../etc/passwd"))
	assert.Equal(t, "/weeks/a/b.jpg", fsPath("weeks/a/b.jpg"))
}
