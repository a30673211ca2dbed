package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"postboard/internal/auth"
	"postboard/internal/media"
	"postboard/internal/models"
	"postboard/internal/resettoken"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userRepoStub is an in-memory repository.UserRepository. The optional
// hooks override the default behaviour of a single method.
type userRepoStub struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]models.User

	createFn func(context.Context, *models.User) error
	updateFn func(context.Context, *models.User) error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{nextID: 1, byID: map[uint]models.User{}}
}

func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	u.PreviousPasswords = append([]string(nil), u.PreviousPasswords...)
	return &u, nil
}

func (s *userRepoStub) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			u.PreviousPasswords = append([]string(nil), u.PreviousPasswords...)
			return &u, nil
		}
	}
	return nil, nil
}

func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	if s.createFn != nil {
		return s.createFn(ctx, user)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email {
			return models.NewConflictError("User already exists")
		}
	}
	user.ID = s.nextID
	s.nextID++
	s.byID[user.ID] = *user
	return nil
}

func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, user)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[user.ID]; !ok {
		return models.NewNotFoundError("User", user.ID)
	}
	s.byID[user.ID] = *user
	return nil
}

func (s *userRepoStub) seed(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	u := &models.User{Name: name, Email: email, Password: hash, PreviousPasswords: []string{hash}}
	require.NoError(t, s.Create(context.Background(), u))
	return u
}

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn     func(context.Context, *models.Post) error
	getByIDFn    func(context.Context, uint) (*models.Post, error)
	listByUserFn func(context.Context, uint, int, int) ([]models.Post, error)
	updateFn     func(context.Context, *models.Post) error
	deleteFn     func(context.Context, uint) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Post, error) {
	return s.listByUserFn(ctx, userID, limit, offset)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:     func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn:    func(_ context.Context, id uint) (*models.Post, error) { return nil, models.NewNotFoundError("Post", id) },
		listByUserFn: func(_ context.Context, _ uint, _, _ int) ([]models.Post, error) { return nil, nil },
		updateFn:     func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn:     func(_ context.Context, _ uint) error { return nil },
	}
}

// fakeMediaStore keeps placed files in a set keyed by public path.
type fakeMediaStore struct {
	mu       sync.Mutex
	files    map[string]bool
	storeErr error
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{files: map[string]bool{}}
}

func (f *fakeMediaStore) Store(_ context.Context, owner string, category media.Category, upload media.Upload) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	p, err := media.PublicPath(owner, category, upload.Filename)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = true
	return p, nil
}

func (f *fakeMediaStore) Replace(ctx context.Context, existingPath, owner string, category media.Category, upload media.Upload) (string, error) {
	return media.ReplaceCommit(ctx, f, existingPath, owner, category, upload, nil)
}

func (f *fakeMediaStore) Delete(_ context.Context, publicPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, publicPath)
	return nil
}

func (f *fakeMediaStore) put(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = true
}

func (f *fakeMediaStore) has(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[p]
}

// recordingMailer remembers the last message per recipient.
type recordingMailer struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: map[string]string{}}
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[to] = fmt.Sprintf("%s\n%s", subject, body)
	return m.err
}

type fixture struct {
	users  *userRepoStub
	media  *fakeMediaStore
	mailer *recordingMailer
	store  *resettoken.MemoryStore
	tokens *auth.Tokens
	resets *ResetTokenIssuer
	creds  *CredentialService
}

func newFixture() *fixture {
	f := &fixture{
		users:  newUserRepoStub(),
		media:  newFakeMediaStore(),
		mailer: newRecordingMailer(),
		store:  resettoken.NewMemoryStore(),
		tokens: auth.NewTokens("test-secret-that-is-long-enough-for-hs256"),
	}
	f.resets = NewResetTokenIssuer(f.users, f.store, f.tokens, f.mailer)
	f.creds = NewCredentialService(f.users, f.media, f.tokens, f.resets)
	return f
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppError(t, err, models.CodeValidation)
}
