package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"postboard/internal/auth"
	"postboard/internal/mail"
	"postboard/internal/middleware"
	"postboard/internal/models"
	"postboard/internal/repository"
	"postboard/internal/resettoken"
)

const resetMailSubject = "Password reset request"

// ResetTokenIssuer hands out password-reset tokens and checks them back in.
// Only the most recently issued token for an email is accepted.
type ResetTokenIssuer struct {
	users  repository.UserRepository
	store  resettoken.Store
	tokens *auth.Tokens
	mailer mail.Sender
}

func NewResetTokenIssuer(
	users repository.UserRepository,
	store resettoken.Store,
	tokens *auth.Tokens,
	mailer mail.Sender,
) *ResetTokenIssuer {
	return &ResetTokenIssuer{
		users:  users,
		store:  store,
		tokens: tokens,
		mailer: mailer,
	}
}

// IssueToken creates a reset token for email, replacing any pending one,
// and mails it. Mail failures are logged, not returned.
func (i *ResetTokenIssuer) IssueToken(ctx context.Context, email string) (token string, err error) {
	defer func() {
		middleware.AuthEvents.WithLabelValues("issue_reset_token", middleware.Outcome(err)).Inc()
	}()

	email = NormalizeEmail(email)
	if email == "" {
		return "", models.NewValidationError("Email is required")
	}

	user, err := i.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", models.NewUserNotFoundError()
	}

	token, err = i.tokens.IssueResetToken(email)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	if err := i.store.Set(ctx, email, token, auth.ResetTokenTTL); err != nil {
		return "", models.NewInternalError(err)
	}

	body := fmt.Sprintf("Your password reset token is:\n\n%s\n\nIt expires in %d minutes.", token, int(auth.ResetTokenTTL.Minutes()))
	if err := i.mailer.Send(ctx, email, resetMailSubject, body); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to deliver reset token", "user_id", user.ID, "error", err)
	}

	return token, nil
}

// Validate checks token against the pending token for email without
// consuming it.
func (i *ResetTokenIssuer) Validate(ctx context.Context, email, token string) error {
	stored, err := i.store.Get(ctx, email)
	if errors.Is(err, resettoken.ErrNotFound) {
		return models.NewInvalidTokenError("Invalid or expired reset token")
	}
	if err != nil {
		return models.NewInternalError(err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return models.NewInvalidTokenError("Invalid or expired reset token")
	}

	if err := i.tokens.VerifyResetToken(token, email); err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return models.NewInvalidTokenError("Reset token has expired")
		}
		return models.NewInvalidTokenError("Invalid or expired reset token")
	}
	return nil
}

// ValidateAndConsume validates token and atomically removes the pending
// entry. Only one caller can consume a given token, and a newer token issued
// in the meantime is left in place.
func (i *ResetTokenIssuer) ValidateAndConsume(ctx context.Context, email, token string) error {
	if err := i.Validate(ctx, email, token); err != nil {
		return err
	}
	consumed, err := i.store.Consume(ctx, email, token)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !consumed {
		return models.NewInvalidTokenError("Invalid or expired reset token")
	}
	return nil
}
