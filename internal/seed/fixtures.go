package seed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"postboard/internal/models"
	"postboard/internal/service"

	"gopkg.in/yaml.v3"
)

// Fixtures is a hand-written data set, usually kept in a YAML file:
//
//	users:
//	  - name: Alice
//	    email: alice@example.com
//	    password: Passw0rd!1
//	    bio: hello
//	    follows: [bob@example.com]
//	    posts:
//	      - title: First
//	        content: Hello world
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
}

type FixtureUser struct {
	Name     string        `yaml:"name"`
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	Bio      string        `yaml:"bio"`
	Follows  []string      `yaml:"follows"`
	Posts    []FixturePost `yaml:"posts"`
}

type FixturePost struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// LoadFixtures decodes a YAML fixture document. Unknown keys are rejected.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// Apply registers every fixture user, then their posts and follow edges.
// An empty password falls back to DefaultPassword.
func (s *Seeder) Apply(ctx context.Context, f *Fixtures) ([]*models.User, error) {
	byEmail := make(map[string]*models.User, len(f.Users))
	users := make([]*models.User, 0, len(f.Users))

	for _, fu := range f.Users {
		password := fu.Password
		if password == "" {
			password = DefaultPassword
		}

		u, err := s.credentials.Register(ctx, service.RegisterInput{
			Name:     fu.Name,
			Email:    fu.Email,
			Password: password,
		})
		if err != nil {
			return nil, fmt.Errorf("fixture user %s: %w", fu.Email, err)
		}
		if fu.Bio != "" {
			u.Bio = fu.Bio
			if err := s.db.WithContext(ctx).Model(u).Update("bio", u.Bio).Error; err != nil {
				return nil, fmt.Errorf("fixture bio: %w", err)
			}
		}

		byEmail[u.Email] = u
		users = append(users, u)
	}

	for i, fu := range f.Users {
		u := users[i]
		for _, fp := range fu.Posts {
			if _, err := s.posts.CreatePost(ctx, service.CreatePostInput{
				UserID:  u.ID,
				Title:   fp.Title,
				Content: fp.Content,
			}); err != nil {
				return nil, fmt.Errorf("fixture post %q: %w", fp.Title, err)
			}
		}

		targets := make([]*models.User, 0, len(fu.Follows))
		for _, email := range fu.Follows {
			target, ok := byEmail[service.NormalizeEmail(email)]
			if !ok {
				return nil, fmt.Errorf("fixture user %s follows unknown %s", u.Email, email)
			}
			targets = append(targets, target)
		}
		if len(targets) > 0 {
			if err := s.db.WithContext(ctx).Model(u).Association("Following").Append(targets); err != nil {
				return nil, fmt.Errorf("fixture follows for %s: %w", u.Email, err)
			}
		}
	}

	return users, nil
}
