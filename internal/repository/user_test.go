package repository

import (
	"context"
	"errors"
	"testing"

	"postboard/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByEmail(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "email", "password", "previous_passwords"}).
		AddRow(1, "A", "a@x.io", "hash", `["hash"]`)
	mock.ExpectQuery(quote(`SELECT * FROM "users" WHERE email = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
		WithArgs("a@x.io", 1).
		WillReturnRows(rows)

	user, err := repo.GetByEmail(context.Background(), "a@x.io")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(1), user.ID)
	assert.Equal(t, []string{"hash"}, user.PreviousPasswords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(quote(`SELECT * FROM "users" WHERE email = $1`)).
		WithArgs("missing@x.io", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	user, err := repo.GetByEmail(context.Background(), "missing@x.io")
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(quote(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
		WithArgs(9, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 9)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	mock.ExpectQuery(quote(`SELECT * FROM "users"`)).
		WillReturnError(errors.New("connection reset"))
	_, err = repo.GetByID(context.Background(), 9)
	assert.True(t, models.IsCode(err, models.CodeInternal))
}

func TestUserRepository_Create_Conflict(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(quote(`INSERT INTO "users"`)).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.User{Name: "A", Email: "a@x.io", Password: "h"})
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_SQLite(t *testing.T) {
	db := setupSQLite(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Name: "A", Email: "a@x.io", Password: "h1", PreviousPasswords: []string{"h1"}}
	require.NoError(t, repo.Create(ctx, user))
	require.NotZero(t, user.ID)

	dup := &models.User{Name: "B", Email: "a@x.io", Password: "h2"}
	assert.True(t, models.IsCode(repo.Create(ctx, dup), models.CodeConflict))

	user.Password = "h2"
	user.PreviousPasswords = []string{"h2", "h1"}
	require.NoError(t, repo.Update(ctx, user))

	loaded, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", loaded.Password)
	assert.Equal(t, []string{"h2", "h1"}, loaded.PreviousPasswords)
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, isUniqueConstraintError(errors.New("SQLSTATE 23505")))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
	assert.False(t, isUniqueConstraintError(nil))
}
