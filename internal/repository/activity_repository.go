package repository

import (
	"context"

	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

func (r *ActivityRepository) AppendActivity(ctx context.Context, entry *model.ActivityLog) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

func (r *ActivityRepository) ListActivity(ctx context.Context, attemptID string) ([]model.ActivityLog, error) {
	var logs []model.ActivityLog
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
