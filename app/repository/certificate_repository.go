package repository

import (
	"github.com/eduka-ec/certflow/app/models"
	"gorm.io/gorm"
)

// certificateRepository implements the CertificateRepository interface
type certificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository creates a new certificate repository instance
func NewCertificateRepository(db *gorm.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

func (r *certificateRepository) Create(cert *models.Certificate) error {
	return r.db.Create(cert).Error
}

func (r *certificateRepository) GetByEnrollmentAndCourse(enrollmentID, courseCode string) (*models.Certificate, error) {
	var cert models.Certificate
	err := r.db.Where("enrollment_id = ? AND course_code = ?", enrollmentID, courseCode).
		First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) Update(cert *models.Certificate) error {
	return r.db.Save(cert).Error
}

func (r *certificateRepository) ListByCourse(courseCode string) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := r.db.Preload("Enrollment").Preload("Enrollment.Person").
		Where("course_code = ?", courseCode).
		Order("updated_at DESC").
		Find(&certs).Error
	if err != nil {
		return nil, err
	}
	return certs, nil
}
