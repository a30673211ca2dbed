package database

import "postboard/internal/models"

// PersistentModels lists every model AutoMigrate manages. The goose
// migrations must describe the same tables.
func PersistentModels() []any {
	return []any{
		&models.User{},
		&models.Post{},
	}
}
