package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"postboard/internal/media"
	"postboard/internal/models"
	"postboard/internal/repository"
)

const maxBioLength = 500

type ProfileService struct {
	users repository.UserRepository
	media media.Store
}

// UpdateProfileInput: nil fields are left unchanged.
type UpdateProfileInput struct {
	UserID uint
	Name   *string
	Bio    *string
	Avatar *media.Upload
}

func NewProfileService(users repository.UserRepository, mediaStore media.Store) *ProfileService {
	return &ProfileService{users: users, media: mediaStore}
}

func (s *ProfileService) GetProfile(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *ProfileService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, models.NewValidationError("Name cannot be empty")
		}
		user.Name = name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLength {
			return nil, models.NewValidationError("Bio must not exceed 500 characters")
		}
		user.Bio = bio
	}

	if in.Avatar == nil {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}

	oldPicture := user.ProfilePicture
	_, err = media.ReplaceCommit(ctx, s.media, oldPicture, user.Email, media.CategoryAvatar, *in.Avatar, func(newPath string) error {
		user.ProfilePicture = newPath
		if err := s.users.Update(ctx, user); err != nil {
			user.ProfilePicture = oldPicture
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
