// Package reconcile polls the external invoicing service for payments whose
// tax document is still awaiting authorization, mirrors the authoritative
// document fields into the local payment row and sends the one-time
// authorization e-mail to the payer.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/eduka-ec/certflow/app/models"
	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/cache"
	"github.com/eduka-ec/certflow/internal/pkg/invoicing"
)

// DefaultBatchSize caps how many open invoices one pass pulls from the DB.
const DefaultBatchSize = 20

const courseNameCacheTTL = 30 * time.Minute

// Mailer sends the authorization notification. Satisfied by the SMTP mailer.
type Mailer interface {
	SendMail(to, subject, body string) error
}

// Cache is the optional read-through cache for course display names.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
}

// redisCache adapts the shared Redis client to the Cache interface.
type redisCache struct{}

func (redisCache) Get(key string) (string, error) { return cache.Get(key) }
func (redisCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}

// NewRedisCache returns a Cache backed by the shared Redis client. SetupCache
// must have run first.
func NewRedisCache() Cache {
	return redisCache{}
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	Scanned  int
	Updated  int
	Notified int
	Errors   int
}

// Reconciler performs one polling pass over the open invoices.
type Reconciler struct {
	Payments    repository.PaymentRepository
	Enrollments repository.EnrollmentRepository
	Persons     repository.PersonRepository
	Courses     repository.CourseRepository

	Invoices invoicing.Client
	Mailer   Mailer
	Cache    Cache // optional

	BatchSize int
}

// RunOnce scans one batch of open invoices. A failure on one payment never
// aborts the rest of the batch; the mirror is persisted even when the document
// is not yet authorized so the local row always reflects the last known state.
func (r *Reconciler) RunOnce(ctx context.Context) Stats {
	var stats Stats

	limit := r.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	payments, err := r.Payments.ListOpenInvoices(limit)
	if err != nil {
		log.Errorf("[Reconcile] Could not list open invoices: %v", err)
		stats.Errors++
		return stats
	}

	for i := range payments {
		payment := &payments[i]
		stats.Scanned++
		if err := r.reconcilePayment(ctx, payment, &stats); err != nil {
			log.Errorf("[Reconcile] Payment %s: %v", payment.ID, err)
			stats.Errors++
		}
	}

	if stats.Scanned > 0 {
		log.Infof("[Reconcile] Pass done: scanned=%d updated=%d notified=%d errors=%d",
			stats.Scanned, stats.Updated, stats.Notified, stats.Errors)
	}
	return stats
}

func (r *Reconciler) reconcilePayment(ctx context.Context, payment *models.Payment, stats *Stats) error {
	doc, err := r.Invoices.GetDocumentByID(ctx, payment.Invoice.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document %s: %w", payment.Invoice.DocumentID, err)
	}

	mirror := payment.Invoice
	mirror.Status = doc.Status
	mirror.Authorization = doc.Authorization
	mirror.RideURL = doc.RideURL
	mirror.XMLURL = doc.XMLURL
	mirror.Signed = doc.Signed
	if doc.Number != "" {
		mirror.DocumentNumber = doc.Number
	}

	if err := r.Payments.UpdateInvoiceMirror(payment.ID, mirror); err != nil {
		return fmt.Errorf("persist mirror: %w", err)
	}
	stats.Updated++
	payment.Invoice = mirror

	if mirror.State() != models.InvoiceAuthorized {
		return nil
	}

	// Re-read the durable flag right before sending. The batch query already
	// filtered on it, but the row may have been notified since.
	notified, err := r.Payments.IsInvoiceNotified(payment.ID)
	if err != nil {
		return fmt.Errorf("read notified flag: %w", err)
	}
	if notified {
		return nil
	}

	enrollment, err := r.Enrollments.GetByID(payment.EnrollmentID)
	if err != nil {
		return fmt.Errorf("load enrollment %s: %w", payment.EnrollmentID, err)
	}
	person, err := r.Persons.GetByID(enrollment.PersonID)
	if err != nil {
		return fmt.Errorf("load person %d: %w", enrollment.PersonID, err)
	}
	if person.Email == "" {
		log.Warnf("[Reconcile] Payment %s authorized but person %s has no e-mail, skipping notification", payment.ID, person.NationalID)
		return nil
	}

	courseName := r.courseName(payment.CourseCode)
	subject := fmt.Sprintf("📄 Factura autorizada SRI - EDUKA (%s)", mirror.DocumentNumber)
	body := notificationBody(person.FullName(), courseName, mirror)

	if err := r.Mailer.SendMail(person.Email, subject, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	if err := r.Payments.MarkInvoiceNotified(payment.ID, time.Now()); err != nil {
		// Mail went out but the flag did not stick; the next pass may send a
		// duplicate. Surface it loudly.
		return fmt.Errorf("mark notified after send: %w", err)
	}
	stats.Notified++
	log.Infof("[Reconcile] Notified %s about authorized invoice %s", person.Email, mirror.DocumentNumber)
	return nil
}

// courseName resolves the course display name, read-through cached. Falls back
// to the raw code when the course row or the cache is unavailable.
func (r *Reconciler) courseName(code string) string {
	cacheKey := "course:name:" + code

	if r.Cache != nil {
		if name, err := r.Cache.Get(cacheKey); err == nil && name != "" {
			return name
		}
	}

	course, err := r.Courses.GetByCode(code)
	if err != nil || course.Name == "" {
		return code
	}

	if r.Cache != nil {
		if err := r.Cache.Set(cacheKey, course.Name, courseNameCacheTTL); err != nil {
			log.Debugf("[Reconcile] Could not cache course name %s: %v", code, err)
		}
	}
	return course.Name
}

func notificationBody(fullName, courseName string, m models.InvoiceMirror) string {
	return fmt.Sprintf(`
		<h2>Factura electrónica autorizada</h2>
		<p>Estimado/a <strong>%s</strong>,</p>
		<p>Su factura <strong>%s</strong> por el curso <strong>%s</strong> fue autorizada por el SRI.</p>
		<p>Número de autorización: <strong>%s</strong></p>
		<p><a href="%s">Descargar RIDE (PDF)</a><br><a href="%s">Descargar XML</a></p>
		<p>Gracias por confiar en EDUKA.</p>
	`, fullName, m.DocumentNumber, courseName, m.Authorization, m.RideURL, m.XMLURL)
}
