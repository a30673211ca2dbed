// Package seed creates demo data for development databases. Users and posts
// go through the same services the API uses, so seeded rows obey the
// password policy and history rules.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"postboard/internal/auth"
	"postboard/internal/models"
	"postboard/internal/repository"
	"postboard/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the login password of every seeded user.
const DefaultPassword = "Seed3d!Pass9"

// Options configuration for the seeder
type Options struct {
	NumUsers     int
	PostsPerUser int
	Follows      int
}

// Seeder writes fake users, posts and follow edges.
type Seeder struct {
	db          *gorm.DB
	faker       *gofakeit.Faker
	credentials *service.CredentialService
	posts       *service.PostService
}

// NewSeeder returns a seeder over db. A zero seed picks a random one.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	users := repository.NewUserRepository(db)
	posts := repository.NewPostRepository(db, nil)

	// Seeded data never carries uploads or reset tokens.
	return &Seeder{
		db:          db,
		faker:       gofakeit.New(seed),
		credentials: service.NewCredentialService(users, nil, auth.NewTokens(""), nil),
		posts:       service.NewPostService(posts, users, nil),
	}
}

// ClearAll removes every post, follow edge and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := db.Unscoped().Delete(&models.Post{}).Error; err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}
	if err := db.Exec("DELETE FROM user_follows").Error; err != nil {
		return fmt.Errorf("clear follows: %w", err)
	}
	if err := db.Unscoped().Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

// Run creates opts.NumUsers users, each with opts.PostsPerUser posts and
// following up to opts.Follows other seeded users.
func (s *Seeder) Run(ctx context.Context, opts Options) ([]*models.User, error) {
	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		u, err := s.CreateUser(ctx, i)
		if err != nil {
			return nil, err
		}
		users = append(users, u)

		for j := 0; j < opts.PostsPerUser; j++ {
			if _, err := s.CreatePost(ctx, u); err != nil {
				return nil, err
			}
		}
	}

	if err := s.Follow(ctx, users, opts.Follows); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers one fake user. n keeps emails unique within a run.
func (s *Seeder) CreateUser(ctx context.Context, n int) (*models.User, error) {
	first, last := s.faker.FirstName(), s.faker.LastName()
	email := fmt.Sprintf("%s.%s%d@%s", slug(first), slug(last), n, s.faker.DomainName())

	user, err := s.credentials.Register(ctx, service.RegisterInput{
		Name:     first + " " + last,
		Email:    email,
		Password: DefaultPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("seed user %s: %w", email, err)
	}

	user.Bio = s.faker.Sentence(10)
	if err := s.db.WithContext(ctx).Model(user).Update("bio", user.Bio).Error; err != nil {
		return nil, fmt.Errorf("seed bio: %w", err)
	}
	return user, nil
}

// CreatePost writes one fake post for user.
func (s *Seeder) CreatePost(ctx context.Context, user *models.User) (*models.Post, error) {
	return s.posts.CreatePost(ctx, service.CreatePostInput{
		UserID:  user.ID,
		Title:   strings.TrimSuffix(s.faker.Sentence(5), "."),
		Content: s.faker.Paragraph(1, 3, 8, "\n"),
	})
}

// Follow makes every user follow up to n of the others, picked at random.
func (s *Seeder) Follow(ctx context.Context, users []*models.User, n int) error {
	if n <= 0 || len(users) < 2 {
		return nil
	}
	if n > len(users)-1 {
		n = len(users) - 1
	}

	for i, u := range users {
		picked := map[int]bool{i: true}
		targets := make([]*models.User, 0, n)
		for len(targets) < n {
			j := s.faker.Number(0, len(users)-1)
			if picked[j] {
				continue
			}
			picked[j] = true
			targets = append(targets, users[j])
		}
		if err := s.db.WithContext(ctx).Model(u).Association("Following").Append(targets); err != nil {
			return fmt.Errorf("seed follows for user %d: %w", u.ID, err)
		}
	}
	return nil
}

// slug keeps the lowercase ASCII letters of name.
func slug(name string) string {
	return strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, name)
}
