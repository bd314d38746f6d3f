package pdf

import (
	"bytes"
	"fmt"

	"github.com/bmf87/l3vision/internal/domain"
)

const (
	MinDPI = 36
	MaxDPI = 600

	// DefaultDPI is the render resolution used when the caller passes 0.
	DefaultDPI = 200
)

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for PDF documents
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateDocument checks that data looks like a PDF before it reaches the
// native renderer.
func (v *Validator) ValidateDocument(data []byte) error {
	if len(data) == 0 {
		return domain.UnsupportedFormatError("document is empty", nil)
	}

	// Some producers emit junk before the header; the PDF reference allows
	// it within the first 1024 bytes.
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, pdfMagic) {
		return domain.UnsupportedFormatError("document is not a PDF (missing %PDF- header)", nil)
	}

	return nil
}

// ValidateDPI validates the render resolution
func (v *Validator) ValidateDPI(dpi int) error {
	if dpi < MinDPI || dpi > MaxDPI {
		return domain.ValidationError(fmt.Sprintf("dpi must be between %d and %d, got %d", MinDPI, MaxDPI, dpi), nil)
	}
	return nil
}
