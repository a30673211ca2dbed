// Package service holds the application's use cases: the credential
// lifecycle, password resets, posts and profiles.
package service

import (
	"context"
	"strings"

	"postboard/internal/auth"
	"postboard/internal/media"
	"postboard/internal/middleware"
	"postboard/internal/models"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/validation"
)

// CredentialService registers users, checks their passwords and manages
// password changes and resets.
type CredentialService struct {
	users  repository.UserRepository
	media  media.Store
	tokens *auth.Tokens
	resets *ResetTokenIssuer
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Avatar   *media.Upload
}

type ChangePasswordInput struct {
	UserID          uint
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

type ResetPasswordInput struct {
	Email       string
	Token       string
	NewPassword string
}

func NewCredentialService(
	users repository.UserRepository,
	mediaStore media.Store,
	tokens *auth.Tokens,
	resets *ResetTokenIssuer,
) *CredentialService {
	return &CredentialService{
		users:  users,
		media:  mediaStore,
		tokens: tokens,
		resets: resets,
	}
}

// NormalizeEmail lowercases and trims an email address. Emails are stored
// and looked up in this form only.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (user *models.User, err error) {
	ctx, span := observability.StartSpan(ctx, "credentials.Register")
	defer func() {
		middleware.AuthEvents.WithLabelValues("register", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Name, email and password are required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user = &models.User{
		Name:              name,
		Email:             email,
		Password:          hash,
		PreviousPasswords: []string{hash},
	}

	if in.Avatar != nil {
		path, err := s.media.Store(ctx, email, media.CategoryAvatar, *in.Avatar)
		if err != nil {
			return nil, err
		}
		user.ProfilePicture = path
	}

	if err := s.users.Create(ctx, user); err != nil {
		media.Discard(ctx, s.media, user.ProfilePicture)
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate returns the user whose email and password match.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUserNotFoundError()
	}

	if !auth.ComparePassword(user.Password, password) {
		return nil, models.NewInvalidCredentialsError()
	}
	return user, nil
}

// Login authenticates and mints a session token for the user.
func (s *CredentialService) Login(ctx context.Context, email, password string) (token string, user *models.User, err error) {
	ctx, span := observability.StartSpan(ctx, "credentials.Login")
	defer func() {
		middleware.AuthEvents.WithLabelValues("login", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	user, err = s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	token, err = s.tokens.IssueSessionToken(user.ID)
	if err != nil {
		return "", nil, models.NewInternalError(err)
	}
	return token, user, nil
}

func (s *CredentialService) ChangePassword(ctx context.Context, in ChangePasswordInput) (err error) {
	ctx, span := observability.StartSpan(ctx, "credentials.ChangePassword")
	defer func() {
		middleware.AuthEvents.WithLabelValues("change_password", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	if in.OldPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return models.NewValidationError("Old, new and confirm passwords are required")
	}
	if in.NewPassword != in.ConfirmPassword {
		return models.NewValidationError("New password and confirm password do not match")
	}
	if err := validation.ValidatePassword(in.NewPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return err
	}

	if !auth.ComparePassword(user.Password, in.OldPassword) {
		return models.NewUnauthorizedError("Old password is incorrect")
	}

	hash, err := s.prepareNewPassword(ctx, user, in.NewPassword)
	if err != nil {
		return err
	}

	return s.commitPassword(ctx, user, hash)
}

func (s *CredentialService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, span := observability.StartSpan(ctx, "credentials.ResetPassword")
	defer func() {
		middleware.AuthEvents.WithLabelValues("reset_password", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	email := NormalizeEmail(in.Email)
	if email == "" || in.Token == "" || in.NewPassword == "" {
		return models.NewValidationError("Email, token and new password are required")
	}

	if err := s.resets.Validate(ctx, email, in.Token); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewUserNotFoundError()
	}

	if err := validation.ValidatePassword(in.NewPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	hash, err := s.prepareNewPassword(ctx, user, in.NewPassword)
	if err != nil {
		return err
	}

	// Consume right before the write so a token is good for one reset only.
	if err := s.resets.ValidateAndConsume(ctx, email, in.Token); err != nil {
		return err
	}

	return s.commitPassword(ctx, user, hash)
}

// prepareNewPassword rejects a password found in user's history and returns
// the hash of the accepted one.
func (s *CredentialService) prepareNewPassword(ctx context.Context, user *models.User, password string) (string, error) {
	history := user.PreviousPasswords
	if len(history) == 0 {
		history = []string{user.Password}
	}

	reused, err := auth.IsReused(ctx, history, password)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if reused {
		return "", models.NewPasswordReusedError()
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return hash, nil
}

func (s *CredentialService) commitPassword(ctx context.Context, user *models.User, hash string) error {
	history := user.PreviousPasswords
	if len(history) == 0 {
		history = []string{user.Password}
	}

	user.Password = hash
	user.PreviousPasswords = auth.PushHistory(history, hash)
	return s.users.Update(ctx, user)
}
