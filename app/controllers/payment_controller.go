package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/eduka-ec/certflow/app/models"
	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/invoicing"
)

var invoiceClient invoicing.Client

// SetupPaymentServices injects the invoicing client used by the payment
// handlers. Must run before the router is installed.
func SetupPaymentServices(client invoicing.Client) {
	invoiceClient = client
}

// HandleIssueInvoice creates the electronic invoice for a verified payment,
// mirrors the resulting document locally and submits it to the tax authority.
// From then on the reconciliation loop owns the mirror.
func HandleIssueInvoice(c *fiber.Ctx) error {
	paymentID := c.Params("paymentID")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment id missing"})
	}

	repos := repository.GetGlobalRepositories()

	payment, err := repos.Payment.GetByID(paymentID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "payment not found"})
	}
	if !payment.Verified {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_verified", "message": "payment has not been verified"})
	}
	if payment.Invoice.State() != models.InvoiceNotRequested {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "already_invoiced",
			"message": "an invoice was already requested for this payment",
			"factura": payment.Invoice,
		})
	}

	enrollment, err := repos.Enrollment.GetByID(payment.EnrollmentID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "enrollment not found"})
	}
	person, err := repos.Person.GetByID(enrollment.PersonID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "person not found"})
	}

	ctx := c.Context()
	customer := invoicing.Customer{
		NationalID: person.NationalID,
		Email:      person.Email,
		FirstName:  person.FirstName,
		LastName:   person.LastName,
		Phone:      person.Phone,
		Address:    person.City,
	}

	customerID := person.ExternalCustomerID
	if customerID == "" {
		customerID, err = invoiceClient.EnsureCustomer(ctx, customer)
		if err != nil {
			log.Errorf("[PaymentController] Could not register customer %s: %v", person.NationalID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invoicing_unavailable", "message": "could not register the customer at the invoicing service"})
		}
		if err := repos.Person.SetExternalCustomerID(person.ID, customerID); err != nil {
			log.Warnf("[PaymentController] Could not store customer id for person %d: %v", person.ID, err)
		}
	}

	number, err := invoiceClient.NextDocumentNumber(ctx)
	if err != nil {
		log.Errorf("[PaymentController] Could not determine next document number: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invoicing_unavailable", "message": "could not determine the next document number"})
	}

	description := payment.CourseCode
	if course, cerr := repos.Course.GetByCode(payment.CourseCode); cerr == nil {
		description = course.Name
	}

	doc, err := invoiceClient.CreateInvoice(ctx, invoicing.CreateInvoiceInput{
		DocumentNumber: number,
		CustomerID:     customerID,
		Customer:       customer,
		Total:          payment.Amount,
		Description:    fmt.Sprintf("Inscripción: %s", description),
	})
	if err != nil {
		log.Errorf("[PaymentController] Could not create invoice for payment %s: %v", paymentID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invoicing_unavailable", "message": "could not create the invoice"})
	}

	mirror := models.InvoiceMirror{
		DocumentID:     doc.ID,
		DocumentNumber: doc.Number,
		Status:         doc.Status,
		Authorization:  doc.Authorization,
		RideURL:        doc.RideURL,
		XMLURL:         doc.XMLURL,
		Signed:         doc.Signed,
	}
	if mirror.DocumentNumber == "" {
		mirror.DocumentNumber = number
	}
	if err := repos.Payment.UpdateInvoiceMirror(payment.ID, mirror); err != nil {
		log.Errorf("[PaymentController] Could not persist invoice mirror for payment %s: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "invoice created but could not be recorded"})
	}

	submitted := true
	if err := invoiceClient.SubmitToTaxAuthority(ctx, doc.ID); err != nil {
		// the reconciliation loop keeps polling the document either way
		log.Warnf("[PaymentController] Could not submit document %s to the tax authority: %v", doc.ID, err)
		submitted = false
	}

	return c.JSON(fiber.Map{
		"mensaje":     "Factura emitida",
		"factura":     mirror,
		"enviado_sri": submitted,
	})
}

// HandleGetPayment returns one payment with its derived invoice state.
func HandleGetPayment(c *fiber.Ctx) error {
	paymentID := c.Params("paymentID")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment id missing"})
	}

	payment, err := repository.GetGlobalRepositories().Payment.GetByID(paymentID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "payment not found"})
	}

	return c.JSON(fiber.Map{
		"pago":           payment,
		"estado_factura": payment.Invoice.State(),
	})
}
