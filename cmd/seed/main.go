// Command seed fills the database with fake users and posts for development.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"postboard/internal/config"
	"postboard/internal/database"
	"postboard/internal/models"
	"postboard/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	postsPerUser := flag.Int("posts", 5, "Posts per user")
	follows := flag.Int("follows", 3, "Accounts each user follows")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fixtures := flag.String("fixtures", "", "YAML fixture file to load instead of generated data")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, 0)
	ctx := context.Background()

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	var users []*models.User
	if *fixtures != "" {
		users, err = applyFixtures(ctx, s, *fixtures)
	} else {
		users, err = s.Run(ctx, seed.Options{
			NumUsers:     *numUsers,
			PostsPerUser: *postsPerUser,
			Follows:      *follows,
		})
	}
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users (default password %q)", len(users), seed.DefaultPassword)
}

func applyFixtures(ctx context.Context, s *seed.Seeder, path string) ([]*models.User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fixtures, err := seed.LoadFixtures(f)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, fixtures)
}
