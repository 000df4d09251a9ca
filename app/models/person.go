package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Person is an enrollee identified by their national id (cedula).
// Created or updated idempotently during enrollment intake.
type Person struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	NationalID         string         `gorm:"type:varchar(10);uniqueIndex;not null" json:"national_id" validate:"required,len=10,numeric"`
	FirstName          string         `gorm:"type:varchar(150);not null" json:"first_name" validate:"required,max=150"`
	LastName           string         `gorm:"type:varchar(150);not null" json:"last_name" validate:"required,max=150"`
	Email              string         `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email,max=200"`
	Phone              string         `gorm:"type:varchar(20)" json:"phone"`
	Grade              string         `gorm:"type:varchar(100)" json:"grade"`
	City               string         `gorm:"type:varchar(100)" json:"city"`
	Province           string         `gorm:"type:varchar(100)" json:"province"`
	ExternalCustomerID string         `gorm:"type:varchar(64)" json:"-"` // customer id at the invoicing service
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Person) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// BeforeSave rejects invalid rows before they reach the database. Covers both
// creates and updates.
func (p *Person) BeforeSave(tx *gorm.DB) error {
	return p.Validate()
}

// FullName returns the display name used on certificates and invoices.
func (p *Person) FullName() string {
	return p.FirstName + " " + p.LastName
}
