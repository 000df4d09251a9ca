package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceState is the derived lifecycle state of the mirrored external invoice.
type InvoiceState string

const (
	InvoiceNotRequested InvoiceState = "not_requested"
	InvoiceRequested    InvoiceState = "requested"
	InvoiceAuthorized   InvoiceState = "authorized"
	InvoiceRejected     InvoiceState = "rejected"
	InvoicePending      InvoiceState = "pending"
)

// Status codes reported by the external invoicing service.
const (
	InvoiceStatusRejected = "R"
)

var ErrNotificationRegression = errors.New("invoice notification flag cannot be cleared once set")

// InvoiceMirror holds the locally mirrored fields of the external tax document.
// These columns are owned exclusively by the reconciliation loop once the
// document id has been assigned.
type InvoiceMirror struct {
	DocumentID     string     `gorm:"column:document_id;type:varchar(64);index" json:"document_id"`
	DocumentNumber string     `gorm:"column:document_number;type:varchar(32)" json:"document_number"`
	Status         string     `gorm:"column:status;type:varchar(20)" json:"status"`
	Authorization  string     `gorm:"column:authorization;type:varchar(64)" json:"authorization"`
	RideURL        string     `gorm:"column:ride_url;type:varchar(255)" json:"ride_url"`
	XMLURL         string     `gorm:"column:xml_url;type:varchar(255)" json:"xml_url"`
	Signed         bool       `gorm:"column:signed;default:false" json:"signed"`
	Notified       bool       `gorm:"column:notified;default:false" json:"notified"`
	NotifiedAt     *time.Time `gorm:"column:notified_at" json:"notified_at"`
}

// State derives the typed invoice state. Authorization presence is the sole
// authorization signal; rejected documents are never notified but polling of
// them is not terminated at this layer.
func (m *InvoiceMirror) State() InvoiceState {
	switch {
	case m.DocumentID == "":
		return InvoiceNotRequested
	case m.Authorization != "":
		return InvoiceAuthorized
	case m.Status == InvoiceStatusRejected:
		return InvoiceRejected
	case m.Status == "":
		return InvoiceRequested
	default:
		return InvoicePending
	}
}

// Payment records one deposit/proof tied to one enrollment.
type Payment struct {
	ID           string         `gorm:"type:char(36);primaryKey" json:"id"`
	EnrollmentID string         `gorm:"type:char(36);index;not null" json:"enrollment_id"`
	Enrollment   Enrollment     `gorm:"foreignKey:EnrollmentID" json:"enrollment,omitempty"`
	CourseCode   string         `gorm:"type:varchar(20);index;not null" json:"course_code"`
	ReceiptURL   string         `gorm:"type:varchar(255);not null" json:"receipt_url"`
	Amount       float64        `gorm:"type:decimal(10,2);not null" json:"amount"`
	BankEntity   string         `gorm:"type:varchar(100)" json:"bank_entity"`
	DepositID    string         `gorm:"type:varchar(64)" json:"deposit_id"`
	Confirmed    bool           `gorm:"default:false" json:"confirmed"`
	Verified     bool           `gorm:"default:false" json:"verified"`
	Delivered    bool           `gorm:"default:false" json:"delivered"`
	Note         string         `gorm:"type:varchar(255)" json:"note"`
	EditedBy     string         `gorm:"type:varchar(100)" json:"edited_by"`
	Invoice      InvoiceMirror  `gorm:"embedded;embeddedPrefix:invoice_" json:"invoice"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// MarkNotified sets the one-time notification flag. The false->true transition
// happens exactly once per payment; clearing it again is refused. This guards
// in-memory state only: the durable guard is the repository's
// MarkInvoiceNotified UPDATE, which matches on invoice_notified = false so a
// concurrent writer cannot mark the same payment twice.
func (p *Payment) MarkNotified(at time.Time) error {
	if p.Invoice.Notified {
		return ErrNotificationRegression
	}
	p.Invoice.Notified = true
	p.Invoice.NotifiedAt = &at
	return nil
}
