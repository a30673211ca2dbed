package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	SessionTokenTTL = 5 * time.Hour
	ResetTokenTTL   = 15 * time.Minute

	TokenIssuer   = "postboard-api"
	TokenAudience = "postboard-client"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("JWT secret not configured")
)

// ResetClaims binds a password-reset token to one email address.
type ResetClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session and reset tokens with one secret.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// IssueSessionToken returns a token whose subject is userID, valid for
// SessionTokenTTL.
func (t *Tokens) IssueSessionToken(userID uint) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNoSecret
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ParseSessionToken verifies a session token and returns its user id.
func (t *Tokens) ParseSessionToken(tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	if err := t.parse(tokenString, claims, jwt.WithIssuer(TokenIssuer), jwt.WithAudience(TokenAudience)); err != nil {
		return 0, err
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(id), nil
}

// IssueResetToken returns a token bound to email, valid for ResetTokenTTL.
// Every call yields a distinct token.
func (t *Tokens) IssueResetToken(email string) (string, error) {
	if len(t.secret) == 0 {
		return "", ErrNoSecret
	}

	now := t.now()
	claims := ResetClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ResetTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// VerifyResetToken checks the signature and expiry of tokenString and that
// it was issued for email.
func (t *Tokens) VerifyResetToken(tokenString, email string) error {
	claims := &ResetClaims{}
	if err := t.parse(tokenString, claims, jwt.WithIssuer(TokenIssuer)); err != nil {
		return err
	}
	if !strings.EqualFold(claims.Email, email) {
		return fmt.Errorf("%w: email mismatch", ErrInvalidToken)
	}
	return nil
}

func (t *Tokens) parse(tokenString string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if len(t.secret) == 0 {
		return ErrNoSecret
	}

	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
