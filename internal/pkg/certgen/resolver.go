package certgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2/log"
)

// ErrNoTemplate means not even the general fallback template exists.
var ErrNoTemplate = errors.New("no certificate template available")

var templateGroupPattern = regexp.MustCompile(`_(\d+)\.pdf$`)

// TemplateResolver picks the certificate template for a course. Preference
// order: group-1 specific, course-generic, general fallback.
type TemplateResolver struct {
	Dir string
}

// NewTemplateResolver resolves templates from the given directory.
func NewTemplateResolver(dir string) *TemplateResolver {
	return &TemplateResolver{Dir: dir}
}

// Resolve returns the template path and the group label embedded in its
// filename (empty when the template carries none).
func (r *TemplateResolver) Resolve(courseCode string) (string, string, error) {
	candidates := []string{
		fmt.Sprintf("template_%s_1.pdf", courseCode),
		fmt.Sprintf("template_%s.pdf", courseCode),
		"template_general.pdf",
	}

	for _, name := range candidates {
		path := filepath.Join(r.Dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		group := ""
		if m := templateGroupPattern.FindStringSubmatch(name); m != nil {
			group = m[1]
		}
		log.Debugf("[CertGen] Using template %s (group %q) for course %s", name, group, courseCode)
		return path, group, nil
	}

	return "", "", ErrNoTemplate
}
