package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/officehub-api/internal/models"
)

// UserRepository reads account data owned by the wider application.
type UserRepository interface {
	EmailFor(ctx context.Context, userID uint) (string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a read-only user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) EmailFor(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("id", "email").First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}
