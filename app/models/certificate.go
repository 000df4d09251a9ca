package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// CertificateState is derived from the record, never stored directly.
type CertificateState string

const (
	CertificateNone              CertificateState = "none"               // no record exists
	CertificateGenerated         CertificateState = "generated"          // artifact generated, awaiting institution signature
	CertificateInstitutionSigned CertificateState = "institution_signed" // countersigned batch imported, terminal
)

var ErrCertificateFinalized = errors.New("certificate is already institution-signed")

// Certificate is the deliverable artifact record for one (enrollment, course[,
// group]) combination. At most one institution-signed certificate may exist per
// key; a finalized record is never overwritten.
type Certificate struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	EnrollmentID string         `gorm:"type:char(36);index:idx_certificates_enrollment_course,unique;not null" json:"enrollment_id"`
	Enrollment   Enrollment     `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
	CourseCode   string         `gorm:"type:varchar(20);index:idx_certificates_enrollment_course,unique;not null" json:"course_code"`
	Group        string         `gorm:"type:varchar(10)" json:"group"`
	URL          string         `gorm:"type:varchar(255)" json:"url"`
	Delivered    bool           `gorm:"default:false" json:"delivered"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// State derives the lifecycle state of an existing record. A missing record is
// CertificateNone by definition.
func (c *Certificate) State() CertificateState {
	if c == nil {
		return CertificateNone
	}
	if c.Delivered {
		return CertificateInstitutionSigned
	}
	return CertificateGenerated
}

// Finalize applies a countersigned import: delivery URL, delivered flag and,
// when present, the group label. Refuses to touch an already finalized record.
func (c *Certificate) Finalize(url, group string) error {
	if c.Delivered {
		return ErrCertificateFinalized
	}
	c.URL = url
	c.Delivered = true
	if group != "" {
		c.Group = group
	}
	return nil
}
