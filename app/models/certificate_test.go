package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateStateDerivation(t *testing.T) {
	t.Parallel()

	var missing *Certificate
	assert.Equal(t, CertificateNone, missing.State())

	cert := &Certificate{EnrollmentID: "e1", CourseCode: "CDP"}
	assert.Equal(t, CertificateGenerated, cert.State())

	cert.Delivered = true
	assert.Equal(t, CertificateInstitutionSigned, cert.State())
}

func TestCertificateFinalize(t *testing.T) {
	t.Parallel()

	cert := &Certificate{EnrollmentID: "e1", CourseCode: "CDP", URL: "/old", Group: "2"}

	require.NoError(t, cert.Finalize("/new", "1"))
	assert.True(t, cert.Delivered)
	assert.Equal(t, "/new", cert.URL)
	assert.Equal(t, "1", cert.Group)

	// terminal: a second finalize must not change anything
	err := cert.Finalize("/other", "3")
	assert.ErrorIs(t, err, ErrCertificateFinalized)
	assert.Equal(t, "/new", cert.URL)
	assert.Equal(t, "1", cert.Group)
}

func TestCertificateFinalizeKeepsGroupWhenAbsent(t *testing.T) {
	t.Parallel()

	cert := &Certificate{EnrollmentID: "e1", CourseCode: "CDP", Group: "1"}
	require.NoError(t, cert.Finalize("/url", ""))
	assert.Equal(t, "1", cert.Group)
}

func TestInvoiceMirrorStateDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mirror InvoiceMirror
		want   InvoiceState
	}{
		{name: "no document yet", mirror: InvoiceMirror{}, want: InvoiceNotRequested},
		{name: "document assigned", mirror: InvoiceMirror{DocumentID: "doc-1"}, want: InvoiceRequested},
		{name: "pending at the tax authority", mirror: InvoiceMirror{DocumentID: "doc-1", Status: "P"}, want: InvoicePending},
		{name: "rejected", mirror: InvoiceMirror{DocumentID: "doc-1", Status: InvoiceStatusRejected}, want: InvoiceRejected},
		{name: "authorization code wins", mirror: InvoiceMirror{DocumentID: "doc-1", Status: "P", Authorization: "123"}, want: InvoiceAuthorized},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.mirror.State())
		})
	}
}

func TestPaymentMarkNotifiedOnce(t *testing.T) {
	t.Parallel()

	p := &Payment{Invoice: InvoiceMirror{DocumentID: "doc-1", Authorization: "123"}}
	now := time.Now()

	require.NoError(t, p.MarkNotified(now))
	assert.True(t, p.Invoice.Notified)
	require.NotNil(t, p.Invoice.NotifiedAt)

	err := p.MarkNotified(now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotificationRegression)
	assert.Equal(t, now, *p.Invoice.NotifiedAt)
}
