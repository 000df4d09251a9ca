package repository

import (
	"time"

	"github.com/eduka-ec/certflow/app/models"
)

// PersonRepository defines the interface for person-related database operations
type PersonRepository interface {
	Create(person *models.Person) error
	GetByID(id uint) (*models.Person, error)
	GetByNationalID(nationalID string) (*models.Person, error)
	Update(person *models.Person) error
	SetExternalCustomerID(id uint, customerID string) error
}

// CourseRepository defines the interface for course-related database operations
type CourseRepository interface {
	Create(course *models.Course) error
	GetByCode(code string) (*models.Course, error)
	List() ([]models.Course, error)
}

// EnrollmentRepository defines the interface for enrollment-related database operations
type EnrollmentRepository interface {
	Create(enrollment *models.Enrollment) error
	GetByID(id string) (*models.Enrollment, error)
	GetByPersonAndCourse(personID uint, courseCode string) (*models.Enrollment, error)
}

// PaymentRepository defines the interface for payment-related database operations.
// The invoice_* columns are written only through the mirror/notification methods
// so the reconciliation loop stays the single writer of those fields.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id string) (*models.Payment, error)
	Update(payment *models.Payment) error
	// ListOpenInvoices returns up to limit payments whose external document id
	// is set, authorization is still absent and no notification has been sent,
	// oldest-stale first.
	ListOpenInvoices(limit int) ([]models.Payment, error)
	UpdateInvoiceMirror(paymentID string, mirror models.InvoiceMirror) error
	IsInvoiceNotified(paymentID string) (bool, error)
	MarkInvoiceNotified(paymentID string, at time.Time) error
}

// CertificateRepository defines the interface for certificate-related database operations
type CertificateRepository interface {
	Create(cert *models.Certificate) error
	GetByEnrollmentAndCourse(enrollmentID, courseCode string) (*models.Certificate, error)
	Update(cert *models.Certificate) error
	ListByCourse(courseCode string) ([]models.Certificate, error)
}
