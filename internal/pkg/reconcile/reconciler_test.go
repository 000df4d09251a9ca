package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/eduka-ec/certflow/app/models"
	"github.com/eduka-ec/certflow/internal/pkg/invoicing"
)

// --- fakes ---

type fakePayments struct {
	mu       sync.Mutex
	open     []models.Payment
	mirrors  map[string]models.InvoiceMirror
	notified map[string]bool
	marks    int
}

func newFakePayments(open ...models.Payment) *fakePayments {
	return &fakePayments{
		open:     open,
		mirrors:  map[string]models.InvoiceMirror{},
		notified: map[string]bool{},
	}
}

func (f *fakePayments) Create(*models.Payment) error            { return nil }
func (f *fakePayments) GetByID(string) (*models.Payment, error) { return nil, gorm.ErrRecordNotFound }
func (f *fakePayments) Update(*models.Payment) error            { return nil }

func (f *fakePayments) ListOpenInvoices(limit int) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Payment, 0, limit)
	for _, p := range f.open {
		if f.notified[p.ID] {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePayments) UpdateInvoiceMirror(paymentID string, mirror models.InvoiceMirror) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrors[paymentID] = mirror
	return nil
}

func (f *fakePayments) IsInvoiceNotified(paymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified[paymentID], nil
}

func (f *fakePayments) MarkInvoiceNotified(paymentID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[paymentID] = true
	f.marks++
	return nil
}

type fakeEnrollments struct{ byID map[string]*models.Enrollment }

func (f *fakeEnrollments) Create(*models.Enrollment) error { return nil }
func (f *fakeEnrollments) GetByPersonAndCourse(uint, string) (*models.Enrollment, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeEnrollments) GetByID(id string) (*models.Enrollment, error) {
	if e, ok := f.byID[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakePersons struct{ byID map[uint]*models.Person }

func (f *fakePersons) Create(*models.Person) error                    { return nil }
func (f *fakePersons) GetByNationalID(string) (*models.Person, error) { return nil, gorm.ErrRecordNotFound }
func (f *fakePersons) Update(*models.Person) error                    { return nil }
func (f *fakePersons) SetExternalCustomerID(uint, string) error       { return nil }
func (f *fakePersons) GetByID(id uint) (*models.Person, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeCourses struct {
	byCode map[string]*models.Course
	hits   int
}

func (f *fakeCourses) Create(*models.Course) error    { return nil }
func (f *fakeCourses) List() ([]models.Course, error) { return nil, nil }
func (f *fakeCourses) GetByCode(code string) (*models.Course, error) {
	f.hits++
	if c, ok := f.byCode[code]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeInvoicing struct {
	docs map[string]*invoicing.Document
	errs map[string]error
}

func (f *fakeInvoicing) GetDocumentByID(_ context.Context, id string) (*invoicing.Document, error) {
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, errors.New("document not found")
}
func (f *fakeInvoicing) CreateInvoice(context.Context, invoicing.CreateInvoiceInput) (*invoicing.Document, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeInvoicing) EnsureCustomer(context.Context, invoicing.Customer) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeInvoicing) NextDocumentNumber(context.Context) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeInvoicing) SubmitToTaxAuthority(context.Context, string) error { return nil }

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failNext int
}

func (f *fakeMailer) SendMail(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *memCache) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return "", errors.New("cache miss")
}

func (c *memCache) Set(key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]string{}
	}
	c.data[key] = value.(string)
	return nil
}

// --- helpers ---

func openPayment(id, docID string) models.Payment {
	return models.Payment{
		ID:           id,
		EnrollmentID: "enr-" + id,
		CourseCode:   "CDP",
		Invoice:      models.InvoiceMirror{DocumentID: docID, Status: "P"},
	}
}

func authorizedDoc(number string) *invoicing.Document {
	return &invoicing.Document{
		ID:            "doc-1",
		Number:        number,
		Status:        "A",
		Signed:        true,
		Authorization: "17091234567890",
		RideURL:       "https://invoices.example/ride.pdf",
		XMLURL:        "https://invoices.example/doc.xml",
	}
}

func newTestReconciler(payments *fakePayments, inv invoicing.Client, mailer *fakeMailer) *Reconciler {
	return &Reconciler{
		Payments: payments,
		Enrollments: &fakeEnrollments{byID: map[string]*models.Enrollment{
			"enr-pay-1": {ID: "enr-pay-1", PersonID: 7, CourseCode: "CDP"},
			"enr-pay-2": {ID: "enr-pay-2", PersonID: 8, CourseCode: "CDP"},
		}},
		Persons: &fakePersons{byID: map[uint]*models.Person{
			7: {ID: 7, NationalID: "1234567890", FirstName: "Maria", LastName: "Paredes", Email: "maria@example.com"},
			8: {ID: 8, NationalID: "1111111111", FirstName: "Juan", LastName: "Soto", Email: "juan@example.com"},
		}},
		Courses:  &fakeCourses{byCode: map[string]*models.Course{"CDP": {Code: "CDP", Name: "Curso de Docencia Profesional"}}},
		Invoices: inv,
		Mailer:   mailer,
	}
}

// --- tests ---

func TestRunOnceNotifiesAuthorizedInvoiceExactlyOnce(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"))
	inv := &fakeInvoicing{docs: map[string]*invoicing.Document{"doc-1": authorizedDoc("001-001-000000042")}}
	mailer := &fakeMailer{}
	r := newTestReconciler(payments, inv, mailer)

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Notified)
	assert.Equal(t, 0, stats.Errors)

	mirror := payments.mirrors["pay-1"]
	assert.Equal(t, "17091234567890", mirror.Authorization)
	assert.Equal(t, "001-001-000000042", mirror.DocumentNumber)
	assert.Equal(t, models.InvoiceAuthorized, mirror.State())

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "maria@example.com", mailer.sent[0].to)
	assert.Contains(t, mailer.sent[0].subject, "001-001-000000042")
	assert.Contains(t, mailer.sent[0].body, "Curso de Docencia Profesional")
	assert.True(t, payments.notified["pay-1"])

	// a second pass finds nothing to do
	stats = r.RunOnce(context.Background())
	assert.Equal(t, 0, stats.Scanned)
	assert.Len(t, mailer.sent, 1)
}

func TestRunOncePersistsMirrorWithoutAuthorization(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"))
	inv := &fakeInvoicing{docs: map[string]*invoicing.Document{
		"doc-1": {ID: "doc-1", Status: "P", Signed: true},
	}}
	mailer := &fakeMailer{}
	r := newTestReconciler(payments, inv, mailer)

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 0, stats.Notified)
	assert.Empty(t, mailer.sent)

	mirror := payments.mirrors["pay-1"]
	assert.True(t, mirror.Signed)
	assert.Equal(t, models.InvoicePending, mirror.State())
	assert.False(t, payments.notified["pay-1"])
}

func TestRunOnceRetriesAfterSendFailureWithoutMarking(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"))
	inv := &fakeInvoicing{docs: map[string]*invoicing.Document{"doc-1": authorizedDoc("001-001-000000001")}}
	mailer := &fakeMailer{failNext: 1}
	r := newTestReconciler(payments, inv, mailer)

	stats := r.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Notified)
	assert.False(t, payments.notified["pay-1"], "flag must not be set when the send failed")

	// next pass delivers and marks
	stats = r.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Notified)
	assert.Len(t, mailer.sent, 1)
	assert.True(t, payments.notified["pay-1"])
	assert.Equal(t, 1, payments.marks)
}

func TestRunOnceSkipsConcurrentlyNotifiedPayment(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"))
	inv := &fakeInvoicing{docs: map[string]*invoicing.Document{"doc-1": authorizedDoc("001-001-000000001")}}
	mailer := &fakeMailer{}
	r := newTestReconciler(payments, inv, mailer)

	// the flag flips after the batch query but before the send
	payments.notified["pay-1"] = true
	r.Payments = payments

	// bypass ListOpenInvoices filtering by reconciling directly
	p := openPayment("pay-1", "doc-1")
	var stats Stats
	require.NoError(t, r.reconcilePayment(context.Background(), &p, &stats))

	assert.Empty(t, mailer.sent)
	assert.Equal(t, 1, stats.Updated, "mirror is still persisted")
	assert.Equal(t, 0, stats.Notified)
}

func TestRunOnceIsolatesPerPaymentFailures(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"), openPayment("pay-2", "doc-2"))
	inv := &fakeInvoicing{
		docs: map[string]*invoicing.Document{"doc-2": authorizedDoc("001-001-000000002")},
		errs: map[string]error{"doc-1": errors.New("upstream 502")},
	}
	mailer := &fakeMailer{}
	r := newTestReconciler(payments, inv, mailer)

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Notified)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "juan@example.com", mailer.sent[0].to)
}

func TestRunOnceSkipsPersonWithoutEmail(t *testing.T) {
	t.Parallel()

	payments := newFakePayments(openPayment("pay-1", "doc-1"))
	inv := &fakeInvoicing{docs: map[string]*invoicing.Document{"doc-1": authorizedDoc("001-001-000000001")}}
	mailer := &fakeMailer{}
	r := newTestReconciler(payments, inv, mailer)
	r.Persons = &fakePersons{byID: map[uint]*models.Person{
		7: {ID: 7, NationalID: "1234567890"},
	}}

	stats := r.RunOnce(context.Background())

	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, stats.Notified)
	assert.Empty(t, mailer.sent)
	assert.False(t, payments.notified["pay-1"])
}

func TestCourseNameUsesCache(t *testing.T) {
	t.Parallel()

	payments := newFakePayments()
	inv := &fakeInvoicing{}
	r := newTestReconciler(payments, inv, &fakeMailer{})
	courses := r.Courses.(*fakeCourses)
	r.Cache = &memCache{}

	assert.Equal(t, "Curso de Docencia Profesional", r.courseName("CDP"))
	assert.Equal(t, "Curso de Docencia Profesional", r.courseName("CDP"))
	assert.Equal(t, 1, courses.hits, "second lookup comes from the cache")

	// unknown course falls back to the raw code
	assert.Equal(t, "XX", r.courseName("XX"))
}

func TestManagerDropsOverlappingPass(t *testing.T) {
	t.Parallel()

	blocking := &blockingClient{
		inner:   &fakeInvoicing{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	payments := newFakePayments(openPayment("pay-1", "doc-1"))

	r := newTestReconciler(payments, blocking, &fakeMailer{})
	m := NewManager(r, time.Hour)

	done := make(chan struct{})
	go func() {
		m.TryRun(context.Background())
		close(done)
	}()

	// wait until the first pass is inside the invoicing call
	<-blocking.entered

	_, ran := m.TryRun(context.Background())
	assert.False(t, ran, "overlapping pass must be dropped")

	close(blocking.release)
	<-done

	_, ran = m.TryRun(context.Background())
	assert.True(t, ran, "lock is free again after the pass finished")
}

// blockingClient parks GetDocumentByID until release is closed, signalling
// entry through the entered channel.
type blockingClient struct {
	inner     invoicing.Client
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func (b *blockingClient) GetDocumentByID(ctx context.Context, id string) (*invoicing.Document, error) {
	b.enterOnce.Do(func() { close(b.entered) })
	<-b.release
	return nil, errors.New("released")
}
func (b *blockingClient) CreateInvoice(ctx context.Context, in invoicing.CreateInvoiceInput) (*invoicing.Document, error) {
	return b.inner.CreateInvoice(ctx, in)
}
func (b *blockingClient) EnsureCustomer(ctx context.Context, c invoicing.Customer) (string, error) {
	return b.inner.EnsureCustomer(ctx, c)
}
func (b *blockingClient) NextDocumentNumber(ctx context.Context) (string, error) {
	return b.inner.NextDocumentNumber(ctx)
}
func (b *blockingClient) SubmitToTaxAuthority(ctx context.Context, id string) error {
	return b.inner.SubmitToTaxAuthority(ctx, id)
}
