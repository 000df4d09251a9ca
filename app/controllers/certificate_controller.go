package controllers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/certgen"
	"github.com/eduka-ec/certflow/internal/pkg/certimport"
)

var (
	certImporter  *certimport.Importer
	certGenerator *certgen.Generator
)

// SetupCertificateServices injects the importer and generator used by the
// certificate handlers. Must run before the router is installed.
func SetupCertificateServices(imp *certimport.Importer, gen *certgen.Generator) {
	certImporter = imp
	certGenerator = gen
}

// HandleCertificateUpload receives a ZIP of institution-countersigned
// certificates for one course and returns the per-entry import report.
func HandleCertificateUpload(c *fiber.Ctx) error {
	courseCode := c.Params("course")
	if courseCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "course code missing"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "ZIP file missing (field 'file')"})
	}

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("certbatch_%s.zip", uuid.NewString()))
	if err := c.SaveFile(fileHeader, tmpPath); err != nil {
		log.Errorf("[CertificateController] Could not save uploaded archive: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "could not store uploaded archive"})
	}

	report, err := certImporter.ImportArchive(c.Context(), tmpPath, courseCode)
	if err != nil {
		log.Errorf("[CertificateController] Import for course %s failed: %v", courseCode, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "could not process the archive"})
	}

	log.Infof("[CertificateController] Imported batch for %s: %d processed, %d duplicates, %d ignored, %d failed",
		courseCode, len(report.Procesados), len(report.Duplicados), len(report.Ignorados), len(report.Erroneos))

	return c.JSON(fiber.Map{
		"mensaje": "Certificados procesados",
		"reporte": report,
	})
}

// HandleCertificateGenerate produces the certificate artifact for one payment.
func HandleCertificateGenerate(c *fiber.Ctx) error {
	paymentID := c.Params("paymentID")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "payment id missing"})
	}

	result, err := certGenerator.Generate(c.Context(), paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "payment, enrollment or person not found"})
		}
		if errors.Is(err, certgen.ErrNoTemplate) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no_template", "message": "no certificate template available for this course"})
		}
		log.Errorf("[CertificateController] Generation for payment %s failed: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "could not generate the certificate"})
	}

	return c.JSON(fiber.Map{
		"mensaje": "Certificado generado",
		"certificado": fiber.Map{
			"archivo": result.FileName,
			"curso":   result.CourseCode,
			"grupo":   result.Group,
			"cedula":  result.NationalID,
		},
	})
}

// HandleCertificateReport lists the stored certificate records of one course.
func HandleCertificateReport(c *fiber.Ctx) error {
	courseCode := c.Params("course")
	if courseCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "course code missing"})
	}

	certs, err := repository.GetGlobalRepositories().Certificate.ListByCourse(courseCode)
	if err != nil {
		log.Errorf("[CertificateController] Report for course %s failed: %v", courseCode, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "message": "could not load certificates"})
	}

	return c.JSON(fiber.Map{
		"curso":        courseCode,
		"total":        len(certs),
		"certificados": certs,
	})
}
