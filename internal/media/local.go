package media

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"postboard/internal/middleware"
	"postboard/internal/models"
	"postboard/internal/observability"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

// LocalStore keeps media on a filesystem rooted at root.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore returns a store writing below root on fsys. Temp uploads must
// live on the same filesystem so they can be renamed into place.
func NewLocalStore(fsys afero.Fs, root string) *LocalStore {
	return &LocalStore{fs: fsys, root: root}
}

func (s *LocalStore) Store(ctx context.Context, owner string, category Category, upload Upload) (publicPath string, err error) {
	ctx, span := observability.StartSpan(ctx, "media.Store",
		attribute.String("media.backend", "local"),
		attribute.String("media.category", string(category)))
	defer func() {
		middleware.MediaOperations.WithLabelValues("local", "store", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	publicPath, err = PublicPath(owner, category, upload.Filename)
	if err != nil {
		return "", err
	}
	dir, _ := relativeDir(owner, category)

	// MkdirAll succeeds when the directory already exists.
	if err := s.fs.MkdirAll(filepath.Join(s.root, filepath.FromSlash(dir)), 0o755); err != nil {
		return "", models.NewStorageError("failed to create upload directory", err)
	}

	dest := s.abs(publicPath)
	if err := s.fs.Rename(upload.TempPath, dest); err != nil {
		return "", models.NewStorageError("failed to move upload into place", err)
	}

	middleware.Logger.DebugContext(ctx, "media stored", "path", publicPath)
	return publicPath, nil
}

func (s *LocalStore) Replace(ctx context.Context, existingPath, owner string, category Category, upload Upload) (string, error) {
	return ReplaceCommit(ctx, s, existingPath, owner, category, upload, nil)
}

func (s *LocalStore) Delete(ctx context.Context, publicPath string) (err error) {
	_, span := observability.StartSpan(ctx, "media.Delete", attribute.String("media.backend", "local"))
	defer func() {
		middleware.MediaOperations.WithLabelValues("local", "delete", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	rel, err := relativePath(publicPath)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(filepath.Join(s.root, filepath.FromSlash(rel))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return models.NewStorageError("failed to delete media file", err)
	}
	return nil
}

// abs maps an already validated public path to its location on disk.
func (s *LocalStore) abs(publicPath string) string {
	rel, _ := relativePath(publicPath)
	return filepath.Join(s.root, filepath.FromSlash(rel))
}
