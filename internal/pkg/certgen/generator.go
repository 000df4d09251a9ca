// Package certgen produces the first-stage certificate artifact for a paid
// enrollment: the course template with the person's name stamped on, handed to
// the national signing service when one is configured.
package certgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2/log"

	"github.com/eduka-ec/certflow/app/models"
	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/certname"
	"github.com/eduka-ec/certflow/internal/pkg/pdfoverlay"
	"github.com/eduka-ec/certflow/internal/pkg/signing"
)

// Layout constants for the name overlay, matching the template artwork.
const (
	nameFontSize = 44
	firstNameY   = 250
	lastNameY    = 200
)

// Result describes the generated artifact.
type Result struct {
	ArtifactPath string
	FileName     string
	Group        string
	CourseCode   string
	NationalID   string
}

// Generator turns a payment into an unsigned (or locally signed) certificate
// artifact and records the generated-stage Certificate.
type Generator struct {
	Persons      repository.PersonRepository
	Enrollments  repository.EnrollmentRepository
	Payments     repository.PaymentRepository
	Courses      repository.CourseRepository
	Certificates repository.CertificateRepository

	Resolver *TemplateResolver
	Overlay  pdfoverlay.Engine
	Signer   signing.Service // optional; nil disables local signing

	// OutputRoot is the unsigned-stage directory; artifacts land in a
	// per-course subdirectory below it.
	OutputRoot string
	// PublicPrefix is the URL prefix under which OutputRoot is served.
	PublicPrefix string
}

// Generate produces the certificate artifact for one payment. Unresolvable
// payment, enrollment or person aborts with an error; a failing signing
// service does not.
func (g *Generator) Generate(ctx context.Context, paymentID string) (*Result, error) {
	payment, err := g.Payments.GetByID(paymentID)
	if err != nil {
		return nil, fmt.Errorf("payment %s not found: %w", paymentID, err)
	}
	enrollment, err := g.Enrollments.GetByID(payment.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment for payment %s not found: %w", paymentID, err)
	}
	person, err := g.Persons.GetByID(enrollment.PersonID)
	if err != nil {
		return nil, fmt.Errorf("person for enrollment %s not found: %w", enrollment.ID, err)
	}

	courseCode := enrollment.CourseCode
	if courseCode == "" {
		courseCode = payment.CourseCode
	}
	courseName := courseCode
	if course, err := g.Courses.GetByCode(courseCode); err == nil {
		courseName = course.Name
	}

	templatePath, group, err := g.Resolver.Resolve(courseCode)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(g.OutputRoot, courseCode)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	fileName := certname.UnsignedFileName(person.NationalID, courseCode, group)
	outPath := filepath.Join(outDir, fileName)

	stamps := []pdfoverlay.Stamp{
		{Text: person.FirstName, OffsetY: firstNameY, FontSize: nameFontSize},
		{Text: person.LastName, OffsetY: lastNameY, FontSize: nameFontSize},
	}
	if err := g.Overlay.StampCentered(templatePath, outPath, stamps); err != nil {
		return nil, fmt.Errorf("overlay names: %w", err)
	}

	artifactPath := outPath
	if g.Signer != nil {
		signedPath, err := g.Signer.Sign(ctx, outPath, signing.Metadata{
			NationalID: person.NationalID,
			FullName:   person.FullName(),
			CourseName: courseName,
		})
		if err != nil {
			log.Errorf("[CertGen] Signing failed for %s, keeping unsigned artifact: %v", fileName, err)
		} else {
			artifactPath = signedPath
		}
	}

	// the unsigned intermediate is superseded once a distinct signed file exists
	if artifactPath != outPath {
		if err := os.Remove(outPath); err != nil {
			log.Warnf("[CertGen] Could not remove unsigned artifact %s: %v", outPath, err)
		}
	}

	if err := g.recordGenerated(enrollment, courseCode, group, filepath.Base(artifactPath)); err != nil {
		return nil, err
	}

	return &Result{
		ArtifactPath: artifactPath,
		FileName:     filepath.Base(artifactPath),
		Group:        group,
		CourseCode:   courseCode,
		NationalID:   person.NationalID,
	}, nil
}

// recordGenerated upserts the generated-stage Certificate. An already
// finalized record is left untouched: re-running generation must never
// regress an institution-signed certificate.
func (g *Generator) recordGenerated(enrollment *models.Enrollment, courseCode, group, fileName string) error {
	url := certname.PublicURL(g.PublicPrefix, courseCode, fileName)

	existing, err := g.Certificates.GetByEnrollmentAndCourse(enrollment.ID, courseCode)
	if err != nil {
		cert := &models.Certificate{
			EnrollmentID: enrollment.ID,
			CourseCode:   courseCode,
			Group:        group,
			URL:          url,
		}
		return g.Certificates.Create(cert)
	}

	if existing.State() == models.CertificateInstitutionSigned {
		log.Infof("[CertGen] Certificate for enrollment %s course %s already finalized, not touching it", enrollment.ID, courseCode)
		return nil
	}

	existing.URL = url
	if group != "" {
		existing.Group = group
	}
	return g.Certificates.Update(existing)
}
