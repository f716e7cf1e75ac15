package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// namePattern is the engine naming constraint shared by container names and image tags.
var namePattern = regexp.MustCompile(`^[a-z0-9]+$`)

// ValidateName returns ErrInvalidName unless name is non-empty lowercase alphanumerics.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, namePattern)
	}
	return nil
}

// NameFromContentPath derives the unique name from the content's base filename,
// dropping the extension and lowercasing it. The result is not validated.
func NameFromContentPath(contentPath string) string {
	base := filepath.Base(contentPath)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
