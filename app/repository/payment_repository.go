package repository

import (
	"time"

	"github.com/eduka-ec/certflow/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

func (r *paymentRepository) GetByID(id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// ListOpenInvoices returns the reconciliation batch: document issued, no
// authorization yet, customer not notified. Oldest-stale first bounds
// starvation when the batch limit is hit.
func (r *paymentRepository) ListOpenInvoices(limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Where("invoice_document_id <> ''").
		Where("invoice_authorization = ''").
		Where("invoice_notified = ?", false).
		Order("updated_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) UpdateInvoiceMirror(paymentID string, mirror models.InvoiceMirror) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"invoice_document_id":     mirror.DocumentID,
			"invoice_document_number": mirror.DocumentNumber,
			"invoice_status":          mirror.Status,
			"invoice_authorization":   mirror.Authorization,
			"invoice_ride_url":        mirror.RideURL,
			"invoice_xml_url":         mirror.XMLURL,
			"invoice_signed":          mirror.Signed,
		}).Error
}

func (r *paymentRepository) IsInvoiceNotified(paymentID string) (bool, error) {
	var notified bool
	err := r.db.Model(&models.Payment{}).Where("id = ?", paymentID).
		Select("invoice_notified").Row().Scan(&notified)
	if err != nil {
		return false, err
	}
	return notified, nil
}

func (r *paymentRepository) MarkInvoiceNotified(paymentID string, at time.Time) error {
	return r.db.Model(&models.Payment{}).
		Where("id = ? AND invoice_notified = ?", paymentID, false).
		Updates(map[string]interface{}{
			"invoice_notified":    true,
			"invoice_notified_at": at,
		}).Error
}
