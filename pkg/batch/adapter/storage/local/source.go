package local

import (
	"fmt"
	"os"
	"strings"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

const sourceModule = "source_validator"

// SourceValidator checks input file names against the data directory.
type SourceValidator struct {
	dataDir string
}

// NewSourceValidator creates a validator rooted at dataDir.
func NewSourceValidator(dataDir string) *SourceValidator {
	return &SourceValidator{dataDir: dataDir}
}

// DataDir returns the directory input files must live under.
func (v *SourceValidator) DataDir() string {
	return v.dataDir
}

// Resolve returns the absolute path of filename. The name must be non-empty and must
// resolve to an existing, readable, regular file under the data directory.
// Every failure is a ValidationError.
func (v *SourceValidator) Resolve(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", exception.NewValidationError(sourceModule, "filename must not be empty")
	}

	path, err := ResolveWithin(v.dataDir, filename)
	if err != nil {
		return "", exception.NewValidationError(sourceModule, fmt.Sprintf("file '%s' is not inside the data directory", filename))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", exception.NewValidationError(sourceModule, fmt.Sprintf("file '%s' does not exist", filename))
		}
		return "", exception.NewValidationError(sourceModule, fmt.Sprintf("file '%s' cannot be accessed: %v", filename, err))
	}
	if !info.Mode().IsRegular() {
		return "", exception.NewValidationError(sourceModule, fmt.Sprintf("'%s' is not a regular file", filename))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", exception.NewValidationError(sourceModule, fmt.Sprintf("file '%s' is not readable", filename))
	}
	_ = f.Close()
	return path, nil
}
