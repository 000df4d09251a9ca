package repository

import (
	"github.com/eduka-ec/certflow/app/models"
	"gorm.io/gorm"
)

// enrollmentRepository implements the EnrollmentRepository interface
type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository creates a new enrollment repository instance
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Create(enrollment *models.Enrollment) error {
	return r.db.Create(enrollment).Error
}

func (r *enrollmentRepository) GetByID(id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.Where("id = ?", id).First(&enrollment).Error; err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (r *enrollmentRepository) GetByPersonAndCourse(personID uint, courseCode string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := r.db.Where("person_id = ? AND course_code = ?", personID, courseCode).
		First(&enrollment).Error
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}
