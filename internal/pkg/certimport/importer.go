// Package certimport ingests a batch of institution-countersigned
// certificates delivered as an archive of PDFs with no structured metadata.
// Identity, group and signature status are inferred from entry names; each
// entry is classified into exactly one of the four report buckets.
package certimport

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/eduka-ec/certflow/app/models"
	"github.com/eduka-ec/certflow/app/repository"
	"github.com/eduka-ec/certflow/internal/pkg/archive"
	"github.com/eduka-ec/certflow/internal/pkg/certname"
)

// ReportEntry is one classified archive entry.
type ReportEntry struct {
	Archivo      string `json:"archivo"`
	Cedula       string `json:"cedula,omitempty"`
	Grupo        string `json:"grupo,omitempty"`
	Motivo       string `json:"motivo,omitempty"`
	GuardadoComo string `json:"guardadoComo,omitempty"`
}

// Report is the structured result of one import run.
type Report struct {
	Procesados []ReportEntry `json:"procesados"`
	Duplicados []ReportEntry `json:"duplicados"`
	Ignorados  []ReportEntry `json:"ignorados"`
	Erroneos   []ReportEntry `json:"erroneos"`
}

// NewReport returns a report with empty (not nil) buckets so JSON renders
// arrays, never null.
func NewReport() *Report {
	return &Report{
		Procesados: []ReportEntry{},
		Duplicados: []ReportEntry{},
		Ignorados:  []ReportEntry{},
		Erroneos:   []ReportEntry{},
	}
}

// CertificateBackup is the optional offsite copy of finalized certificates.
type CertificateBackup interface {
	UploadCertificate(ctx context.Context, localPath, courseCode, fileName string) error
}

// Importer correlates countersigned files to stored certificate records.
type Importer struct {
	Persons      repository.PersonRepository
	Enrollments  repository.EnrollmentRepository
	Certificates repository.CertificateRepository

	// UnsignedRoot holds the generator-stage artifacts, FinalRoot the
	// countersigned finals; both contain one subdirectory per course.
	UnsignedRoot string
	FinalRoot    string
	// PublicPrefix is the URL prefix under which FinalRoot is served.
	PublicPrefix string

	Backup CertificateBackup // optional
}

// ImportArchive opens a ZIP on disk, imports it and removes the temporary
// file afterwards. A failing cleanup is logged, never returned.
func (imp *Importer) ImportArchive(ctx context.Context, zipPath, courseCode string) (*Report, error) {
	rd, err := archive.OpenZip(zipPath)
	if err != nil {
		return nil, err
	}

	report, err := imp.Import(ctx, rd, courseCode)

	if cerr := rd.Close(); cerr != nil {
		log.Warnf("[CertImport] Could not close archive %s: %v", zipPath, cerr)
	}
	if rerr := os.Remove(zipPath); rerr != nil {
		log.Warnf("[CertImport] Could not remove temporary archive %s: %v", zipPath, rerr)
	}

	return report, err
}

// Import processes every entry of an opened archive. Entry-level failures are
// recorded in the report and never abort the remaining entries.
func (imp *Importer) Import(ctx context.Context, rd archive.Reader, courseCode string) (*Report, error) {
	report := NewReport()

	finalDir := filepath.Join(imp.FinalRoot, courseCode)
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return nil, err
	}

	for _, entry := range rd.Entries() {
		if entry.IsDir() {
			continue
		}
		name := path.Base(entry.Name())
		if !strings.HasSuffix(name, certname.CertExt) {
			continue
		}
		imp.processEntry(ctx, entry, name, courseCode, finalDir, report)
	}

	return report, nil
}

func (imp *Importer) processEntry(ctx context.Context, entry archive.Entry, name, courseCode, finalDir string, report *Report) {
	parsed := certname.Parse(name)

	if parsed.NationalID == "" {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Motivo:  "No contiene cédula de 10 dígitos en el nombre",
		})
		return
	}

	if !parsed.InstitutionSigned {
		report.Ignorados = append(report.Ignorados, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "El archivo no parece tener firma del instituto (por nombre)",
		})
		return
	}

	person, err := imp.Persons.GetByNationalID(parsed.NationalID)
	if err != nil {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "No se encontró una persona con esa cédula",
		})
		return
	}

	enrollment, err := imp.Enrollments.GetByPersonAndCourse(person.ID, courseCode)
	if err != nil {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "No se encontró inscripción para esa cédula/curso",
		})
		return
	}

	existing, err := imp.Certificates.GetByEnrollmentAndCourse(enrollment.ID, courseCode)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "Error consultando el certificado existente",
		})
		return
	}
	if existing != nil && existing.State() == models.CertificateInstitutionSigned {
		report.Duplicados = append(report.Duplicados, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "Ya existía un certificado firmado por el instituto",
		})
		return
	}

	data, err := entry.Bytes()
	if err != nil {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "No se pudo leer el archivo del ZIP",
		})
		return
	}

	finalFileName := certname.FinalFileName(parsed.NationalID, courseCode)
	finalPath := filepath.Join(finalDir, finalFileName)
	if err := os.WriteFile(finalPath, data, 0o644); err != nil {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "No se pudo guardar el certificado final",
		})
		return
	}

	url := certname.PublicURL(imp.PublicPrefix, courseCode, finalFileName)

	if existing != nil {
		if err := existing.Finalize(url, parsed.Group); err != nil {
			// unreachable after the duplicate check, kept as a hard guard
			report.Duplicados = append(report.Duplicados, ReportEntry{
				Archivo: name,
				Cedula:  parsed.NationalID,
				Motivo:  "Ya existía un certificado firmado por el instituto",
			})
			return
		}
		err = imp.Certificates.Update(existing)
	} else {
		err = imp.Certificates.Create(&models.Certificate{
			EnrollmentID: enrollment.ID,
			CourseCode:   courseCode,
			Group:        parsed.Group,
			URL:          url,
			Delivered:    true,
		})
	}
	if err != nil {
		report.Erroneos = append(report.Erroneos, ReportEntry{
			Archivo: name,
			Cedula:  parsed.NationalID,
			Motivo:  "No se pudo registrar el certificado",
		})
		return
	}

	imp.removeSuperseded(parsed.NationalID, courseCode, parsed.Group)

	if imp.Backup != nil {
		if err := imp.Backup.UploadCertificate(ctx, finalPath, courseCode, finalFileName); err != nil {
			log.Warnf("[CertImport] Offsite backup of %s failed: %v", finalFileName, err)
		}
	}

	report.Procesados = append(report.Procesados, ReportEntry{
		Archivo:      name,
		Cedula:       parsed.NationalID,
		Grupo:        parsed.Group,
		GuardadoComo: finalFileName,
	})
}

// removeSuperseded deletes the generator-stage artifacts the final replaces.
// Deletion failures are logged only.
func (imp *Importer) removeSuperseded(nationalID, courseCode, group string) {
	dir := filepath.Join(imp.UnsignedRoot, courseCode)
	for _, variant := range certname.UnsignedVariants(nationalID, courseCode, group) {
		p := filepath.Join(dir, variant)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Warnf("[CertImport] Could not remove superseded artifact %s: %v", p, err)
		}
	}
}
