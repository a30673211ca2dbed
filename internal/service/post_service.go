package service

import (
	"context"
	"strings"

	"postboard/internal/media"
	"postboard/internal/middleware"
	"postboard/internal/models"
	"postboard/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type PostService struct {
	posts repository.PostRepository
	users repository.UserRepository
	media media.Store
}

type CreatePostInput struct {
	UserID  uint
	Title   string
	Content string
	Image   *media.Upload
}

type ListPostsInput struct {
	UserID uint
	Limit  int
	Offset int
}

// UpdatePostInput carries a partial update: empty Title or Content keep the
// current value, a nil Image keeps the current image.
type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Title   string
	Content string
	Image   *media.Upload
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, mediaStore media.Store) *PostService {
	return &PostService{
		posts: posts,
		users: users,
		media: mediaStore,
	}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		return nil, models.NewValidationError("Title and content are required")
	}

	author, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:   title,
		Content: content,
		UserID:  author.ID,
	}

	if in.Image != nil {
		path, err := s.media.Store(ctx, author.Email, media.CategoryPostImage, *in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = path
	}

	if err := s.posts.Create(ctx, post); err != nil {
		media.Discard(ctx, s.media, post.Image)
		return nil, err
	}

	post.User = *author
	return post, nil
}

// ListMyPosts returns the caller's own posts, newest first.
func (s *PostService) ListMyPosts(ctx context.Context, in ListPostsInput) ([]models.Post, error) {
	limit, offset := in.Limit, in.Offset
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.posts.ListByUser(ctx, in.UserID, limit, offset)
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only update your own posts")
	}

	if title := strings.TrimSpace(in.Title); title != "" {
		post.Title = title
	}
	if content := strings.TrimSpace(in.Content); content != "" {
		post.Content = content
	}

	if in.Image == nil {
		if err := s.posts.Update(ctx, post); err != nil {
			return nil, err
		}
		return post, nil
	}

	author, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	// The new image is staged and the row written before the old file goes.
	oldImage := post.Image
	_, err = media.ReplaceCommit(ctx, s.media, oldImage, author.Email, media.CategoryPostImage, *in.Image, func(newPath string) error {
		post.Image = newPath
		if err := s.posts.Update(ctx, post); err != nil {
			post.Image = oldImage
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes the post and then its image file, if any.
func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.posts.GetByID(ctx, in.PostID)
	if err != nil {
		return err
	}
	if post.UserID != in.UserID {
		return models.NewForbiddenError("You can only delete your own posts")
	}

	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return err
	}

	if post.Image != "" {
		if err := s.media.Delete(ctx, post.Image); err != nil {
			middleware.Logger.WarnContext(ctx, "post deleted but image removal failed",
				"post_id", post.ID, "path", post.Image, "error", err)
		}
	}
	return nil
}
