package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enrollment registers one person in one course offering. The semantic key is
// (PersonID, CourseCode); a row is immutable once a payment exists against it.
type Enrollment struct {
	ID         string         `gorm:"type:char(36);primaryKey" json:"id"`
	PersonID   uint           `gorm:"index:idx_enrollments_person_course,unique;not null" json:"person_id"`
	Person     Person         `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	CourseCode string         `gorm:"type:varchar(20);index:idx_enrollments_person_course,unique;not null" json:"course_code"`
	Subsystem  string         `gorm:"type:varchar(100)" json:"subsystem"`
	Accepted   bool           `gorm:"default:false" json:"accepted"`
	Note       string         `gorm:"type:varchar(255)" json:"note"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
