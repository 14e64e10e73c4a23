package documents

import (
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFValidator rejects input that pdfcpu cannot parse as a PDF.
type PDFValidator struct {
	conf *model.Configuration
}

var _ Validator = (*PDFValidator)(nil)

// NewPDFValidator creates a validator using relaxed validation, which
// accepts the minor PDF format deviations common in real-world papers.
func NewPDFValidator() *PDFValidator {
	// pdfcpu otherwise creates a config directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFValidator{conf: conf}
}

// Validate implements Validator.
func (v *PDFValidator) Validate(r io.ReadSeeker) error {
	if err := api.Validate(r, v.conf); err != nil {
		return fmt.Errorf("not a valid PDF: %w", err)
	}
	return nil
}
