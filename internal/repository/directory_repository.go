package repository

import (
	"context"

	"exam_platform_backend/internal/model"

	"gorm.io/gorm"
)

// DirectoryRepository reads the institution directory: users, courses and
// enrollments.
type DirectoryRepository struct {
	DB *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

func (r *DirectoryRepository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *DirectoryRepository) FindUsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *DirectoryRepository) FindCourseByID(ctx context.Context, id string) (*model.Course, error) {
	var course model.Course
	if err := r.DB.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

// IsEnrolled reports whether the student holds an active enrollment.
func (r *DirectoryRepository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("course_id = ? AND student_id = ? AND status = ?", courseID, studentID, model.EnrollmentEnrolled).
		Count(&count).Error
	return count > 0, err
}
