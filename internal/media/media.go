// Package media places uploaded files under a per-user namespace:
//
//	/uploads/users/<email>/<filename>        profile pictures
//	/uploads/users/<email>/posts/<filename>  post images
//
// The returned public path is what entities store and what Replace and
// Delete accept back.
package media

import (
	"context"
	"path"
	"strings"

	"postboard/internal/middleware"
	"postboard/internal/models"
)

// PublicPrefix prefixes every path handed out by a Store.
const PublicPrefix = "/uploads/"

// Category selects the directory an upload lands in.
type Category string

const (
	CategoryAvatar    Category = "avatar"
	CategoryPostImage Category = "post-image"
)

// Upload is a file already written to a temporary location, waiting to be
// moved into place.
type Upload struct {
	Filename string
	TempPath string
}

// Store is the media placement policy. Store and Replace return the public
// path of the placed file; Delete treats an already-absent file as success.
type Store interface {
	Store(ctx context.Context, owner string, category Category, upload Upload) (string, error)
	Replace(ctx context.Context, existingPath, owner string, category Category, upload Upload) (string, error)
	Delete(ctx context.Context, publicPath string) error
}

// relativeDir returns the slash-separated directory for owner and category,
// relative to the uploads root.
func relativeDir(owner string, category Category) (string, error) {
	if owner == "" || owner == "." || owner == ".." || strings.ContainsAny(owner, `/\`) {
		return "", models.NewValidationError("invalid media owner")
	}

	switch category {
	case CategoryAvatar:
		return path.Join("users", owner), nil
	case CategoryPostImage:
		return path.Join("users", owner, "posts"), nil
	default:
		return "", models.NewValidationError("unknown media category: " + string(category))
	}
}

func checkFilename(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return models.NewValidationError("invalid upload filename")
	}
	return nil
}

// PublicPath returns the public path an upload named filename gets for
// owner and category.
func PublicPath(owner string, category Category, filename string) (string, error) {
	dir, err := relativeDir(owner, category)
	if err != nil {
		return "", err
	}
	if err := checkFilename(filename); err != nil {
		return "", err
	}
	return PublicPrefix + path.Join(dir, filename), nil
}

// relativePath strips PublicPrefix from a public path and rejects anything
// that would resolve outside the uploads root.
func relativePath(publicPath string) (string, error) {
	if !strings.HasPrefix(publicPath, PublicPrefix) {
		return "", models.NewStorageError("path is outside the uploads root", nil)
	}
	rel := path.Clean(strings.TrimPrefix(publicPath, PublicPrefix))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", models.NewStorageError("path is outside the uploads root", nil)
	}
	return rel, nil
}

// ReplaceCommit stores upload, hands the new public path to commit (which
// persists it on the owning entity) and only then deletes existingPath. If
// commit fails the new file is removed and existingPath is left untouched,
// so the entity never references a file that is gone. A nil commit makes
// this plain Replace.
func ReplaceCommit(ctx context.Context, s Store, existingPath, owner string, category Category, upload Upload, commit func(newPath string) error) (string, error) {
	newPath, err := s.Store(ctx, owner, category, upload)
	if err != nil {
		return "", err
	}

	if commit != nil {
		if err := commit(newPath); err != nil {
			Discard(ctx, s, newPath)
			return "", err
		}
	}

	if existingPath != "" && existingPath != newPath {
		if err := s.Delete(ctx, existingPath); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to remove replaced media file",
				"path", existingPath, "error", err)
		}
	}
	return newPath, nil
}

// Discard deletes a file that was stored but never committed. Failures are
// only logged.
func Discard(ctx context.Context, s Store, publicPath string) {
	if publicPath == "" {
		return
	}
	if err := s.Delete(ctx, publicPath); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to discard orphaned media file",
			"path", publicPath, "error", err)
	}
}
