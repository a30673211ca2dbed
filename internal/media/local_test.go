package media

import (
	"context"
	"errors"
	"testing"

	"postboard/internal/models"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/srv/uploads"

func stage(t *testing.T, fsys afero.Fs, name, content string) Upload {
	t.Helper()
	tmp := "/srv/uploads/tmp/" + name
	require.NoError(t, afero.WriteFile(fsys, tmp, []byte(content), 0o644))
	return Upload{Filename: name, TempPath: tmp}
}

func TestPublicPath(t *testing.T) {
	p, err := PublicPath("a@x.io", CategoryAvatar, "me.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/a@x.io/me.png", p)

	p, err = PublicPath("a@x.io", CategoryPostImage, "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/a@x.io/posts/cat.png", p)

	for _, tc := range []struct{ owner, file string }{
		{"", "x.png"},
		{"..", "x.png"},
		{"a/b", "x.png"},
		{"a@x.io", "../x.png"},
		{"a@x.io", ""},
	} {
		_, err := PublicPath(tc.owner, CategoryAvatar, tc.file)
		assert.True(t, models.IsCode(err, models.CodeValidation), "%q %q", tc.owner, tc.file)
	}

	_, err = PublicPath("a@x.io", Category("banner"), "x.png")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestLocalStore_Store(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	path, err := store.Store(ctx, "a@x.io", CategoryPostImage, stage(t, fsys, "cat.png", "meow"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/a@x.io/posts/cat.png", path)

	got, err := afero.ReadFile(fsys, "/srv/uploads/users/a@x.io/posts/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "meow", string(got))

	exists, err := afero.Exists(fsys, "/srv/uploads/tmp/cat.png")
	require.NoError(t, err)
	assert.False(t, exists, "temp file should be moved, not copied")

	// Directory already exists on the second upload.
	_, err = store.Store(ctx, "a@x.io", CategoryPostImage, stage(t, fsys, "dog.png", "woof"))
	assert.NoError(t, err)
}

func TestLocalStore_Store_MissingTempFile(t *testing.T) {
	store := NewLocalStore(afero.NewMemMapFs(), root)

	_, err := store.Store(context.Background(), "a@x.io", CategoryAvatar, Upload{Filename: "x.png", TempPath: "/nope"})
	assert.True(t, models.IsCode(err, models.CodeStorage))
}

func TestLocalStore_Replace(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	oldPath, err := store.Store(ctx, "a@x.io", CategoryAvatar, stage(t, fsys, "old.png", "old"))
	require.NoError(t, err)

	newPath, err := store.Replace(ctx, oldPath, "a@x.io", CategoryAvatar, stage(t, fsys, "new.png", "new"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/a@x.io/new.png", newPath)

	exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/old.png")
	assert.False(t, exists)
	exists, _ = afero.Exists(fsys, "/srv/uploads/users/a@x.io/new.png")
	assert.True(t, exists)
}

func TestLocalStore_Replace_MissingOldFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)

	newPath, err := store.Replace(context.Background(), "/uploads/users/a@x.io/gone.png", "a@x.io", CategoryAvatar, stage(t, fsys, "new.png", "new"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/users/a@x.io/new.png", newPath)
}

func TestLocalStore_Replace_FailedUploadKeepsOldFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	oldPath, err := store.Store(ctx, "a@x.io", CategoryAvatar, stage(t, fsys, "old.png", "old"))
	require.NoError(t, err)

	_, err = store.Replace(ctx, oldPath, "a@x.io", CategoryAvatar, Upload{Filename: "new.png", TempPath: "/missing"})
	require.Error(t, err)

	exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/old.png")
	assert.True(t, exists)
}

func TestLocalStore_Delete(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	path, err := store.Store(ctx, "a@x.io", CategoryPostImage, stage(t, fsys, "cat.png", "meow"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, path))
	exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/posts/cat.png")
	assert.False(t, exists)

	// Already gone.
	assert.NoError(t, store.Delete(ctx, path))
}

func TestLocalStore_Delete_RejectsEscapes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/srv/secret", []byte("x"), 0o644))
	store := NewLocalStore(fsys, root)

	for _, p := range []string{"/etc/passwd", "/uploads/../secret", "/uploads/", "relative.png"} {
		err := store.Delete(context.Background(), p)
		var appErr *models.AppError
		require.True(t, errors.As(err, &appErr), p)
		assert.Equal(t, models.CodeStorage, appErr.Code)
	}

	exists, _ := afero.Exists(fsys, "/srv/secret")
	assert.True(t, exists)
}

func TestReplaceCommit_CommitFailureKeepsOldFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	oldPath, err := store.Store(ctx, "a@x.io", CategoryPostImage, stage(t, fsys, "old.png", "old"))
	require.NoError(t, err)

	boom := errors.New("db down")
	_, err = ReplaceCommit(ctx, store, oldPath, "a@x.io", CategoryPostImage, stage(t, fsys, "new.png", "new"), func(string) error { return boom })
	assert.ErrorIs(t, err, boom)

	exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/posts/old.png")
	assert.True(t, exists, "old file must survive a failed commit")
	exists, _ = afero.Exists(fsys, "/srv/uploads/users/a@x.io/posts/new.png")
	assert.False(t, exists, "uncommitted file must be discarded")
}

func TestReplaceCommit_SuccessDeletesOldAfterCommit(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewLocalStore(fsys, root)
	ctx := context.Background()

	oldPath, err := store.Store(ctx, "a@x.io", CategoryPostImage, stage(t, fsys, "old.png", "old"))
	require.NoError(t, err)

	var committed string
	newPath, err := ReplaceCommit(ctx, store, oldPath, "a@x.io", CategoryPostImage, stage(t, fsys, "new.png", "new"), func(p string) error {
		exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/posts/old.png")
		assert.True(t, exists, "old file is removed only after commit")
		committed = p
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, newPath, committed)

	exists, _ := afero.Exists(fsys, "/srv/uploads/users/a@x.io/posts/old.png")
	assert.False(t, exists)
}
