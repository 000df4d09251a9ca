// Package certname implements the filename grammar shared by certificate
// generation and bulk import. Countersigned batches arrive with no structured
// metadata, so identity, group and signature status are inferred from entry
// names. The matching rules are heuristic but fixed for compatibility with
// previously delivered batches.
package certname

import (
	"path"
	"regexp"
	"strings"
)

// CertExt is the only entry extension considered during import.
const CertExt = ".pdf"

var (
	nationalIDPattern = regexp.MustCompile(`\d{10}`)
	groupPattern      = regexp.MustCompile(`(?i)_g(\d+)`)
)

// signedMarkers flag an entry as countersigned by the institution when any of
// them appears in the lower-cased name.
var signedMarkers = []string{"firma", "signed", "signer", "final", "double"}

// Parsed is the typed result of parsing one entry name.
type Parsed struct {
	Name              string
	NationalID        string // first 10-digit run, empty when absent
	Group             string // digits of the first _g<digits> token, empty when absent
	InstitutionSigned bool
}

// Parse extracts identity, group and signature status from an entry name.
// A missing national id leaves NationalID empty; the caller decides whether
// that is an error.
func Parse(name string) Parsed {
	p := Parsed{Name: name}

	p.NationalID = nationalIDPattern.FindString(name)

	if m := groupPattern.FindStringSubmatch(name); m != nil {
		p.Group = m[1]
	}

	lower := strings.ToLower(name)
	for _, marker := range signedMarkers {
		if strings.Contains(lower, marker) {
			p.InstitutionSigned = true
			break
		}
	}

	return p
}

// UnsignedFileName is the artifact name the generator stage produces.
func UnsignedFileName(nationalID, courseCode, group string) string {
	if group != "" {
		return nationalID + "_" + courseCode + "_g" + group + CertExt
	}
	return nationalID + "_" + courseCode + CertExt
}

// FinalFileName is the artifact name of an institution-signed certificate.
func FinalFileName(nationalID, courseCode string) string {
	return nationalID + "_" + courseCode + "_final" + CertExt
}

// PublicURL builds the public path of a finalized certificate.
func PublicURL(finalRoot, courseCode, fileName string) string {
	return "/" + path.Join(strings.Trim(finalRoot, "/"), courseCode, fileName)
}

// UnsignedVariants enumerates every artifact name the generator stage could
// have produced for this id/course/group, including locally signed ones. The
// importer deletes these once the countersigned final exists.
func UnsignedVariants(nationalID, courseCode, group string) []string {
	base := nationalID + "_" + courseCode
	variants := []string{
		base + CertExt,
		base + "_firmado" + CertExt,
	}
	if group != "" {
		variants = append(variants,
			base+"_g"+group+CertExt,
			base+"_g"+group+"_firmado"+CertExt,
		)
	}
	return variants
}
