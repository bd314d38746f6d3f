// Package pdf renders PDF documents into in-memory raster pages using MuPDF.
package pdf

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/bmf87/l3vision/internal/domain"
)

// Rasterizer implements domain.Rasterizer using go-fitz
type Rasterizer struct {
	validator *Validator
}

// NewRasterizer creates a new PDF rasterizer
func NewRasterizer() *Rasterizer {
	return &Rasterizer{validator: NewValidator()}
}

// Open parses the document and returns a lazy page sequence rendered at dpi.
// A dpi of 0 selects DefaultDPI. The caller must Close the returned source.
func (r *Rasterizer) Open(doc domain.DocumentBytes, dpi int) (domain.PageSource, error) {
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if err := r.validator.ValidateDPI(dpi); err != nil {
		return nil, err
	}
	if err := r.validator.ValidateDocument(doc.Data); err != nil {
		return nil, err
	}

	fdoc, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		return nil, domain.UnsupportedFormatError("failed to open PDF", err)
	}

	pageCount := fdoc.NumPage()
	if pageCount == 0 {
		fdoc.Close()
		return nil, domain.EmptyDocumentError("PDF has no pages")
	}

	return &pageSource{
		doc:       fdoc,
		dpi:       float64(dpi),
		pageCount: pageCount,
	}, nil
}

// pageSource renders one page per Next call. It is not safe for concurrent
// use and cannot be restarted.
type pageSource struct {
	doc       *fitz.Document
	dpi       float64
	pageCount int
	next      int

	closeOnce sync.Once
	closeErr  error
}

func (s *pageSource) PageCount() int {
	return s.pageCount
}

// Next renders the next page. It returns io.EOF after the last page.
func (s *pageSource) Next() (domain.RasterPage, error) {
	if s.doc == nil || s.next >= s.pageCount {
		return domain.RasterPage{}, io.EOF
	}

	pageNum := s.next
	s.next++

	// ImageDPI applies zoom = dpi/72 to the page transform.
	img, err := s.doc.ImageDPI(pageNum, s.dpi)
	if err != nil {
		return domain.RasterPage{}, domain.UnsupportedFormatError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
	}

	return domain.RasterPage{
		PageNumber: pageNum + 1,
		Image:      img,
	}, nil
}

// Close releases the native document handle. It is safe to call twice.
func (s *pageSource) Close() error {
	s.closeOnce.Do(func() {
		if s.doc != nil {
			s.closeErr = s.doc.Close()
			s.doc = nil
		}
	})
	return s.closeErr
}
