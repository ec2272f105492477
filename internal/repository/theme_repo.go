package repository

import (
	"context"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ThemeRepository interface {
	Create(ctx context.Context, t *model.Theme) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Theme, error)
}

type themeRepo struct{ db *gorm.DB }

func NewThemeRepository(db *gorm.DB) ThemeRepository { return &themeRepo{db: db} }

func (r *themeRepo) Create(ctx context.Context, t *model.Theme) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *themeRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Theme, error) {
	var t model.Theme
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	return &t, err
}
