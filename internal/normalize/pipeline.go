// Package normalize turns uploaded documents into a single model-ready image.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/imaging"
	"github.com/bmf87/l3vision/internal/observability"
	"github.com/bmf87/l3vision/internal/pdf"
	"github.com/bmf87/l3vision/internal/slides"
)

// ProgressFunc is called after each page is rendered.
type ProgressFunc func(done, total int)

// Options holds the read-only pipeline settings.
type Options struct {
	DPI                      int
	MaxDimension             int
	Quality                  int
	MaxSlideBytes            int64
	PreserveSinglePageAspect bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DPI:           pdf.DefaultDPI,
		MaxDimension:  1024,
		Quality:       imaging.DefaultQuality,
		MaxSlideBytes: slides.MaxDeckBytes,
	}
}

type handlerFunc func(ctx context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error)

// Pipeline implements domain.Normalizer. It is immutable after construction
// and safe to share between requests.
type Pipeline struct {
	rasterizer domain.Rasterizer
	slides     domain.SlideConverter
	opts       Options
	resizer    imaging.Resizer
	progress   ProgressFunc
	logger     *observability.Logger
}

// New creates a pipeline. slideConverter may be nil, in which case slide
// decks fail with a collaborator error.
func New(rasterizer domain.Rasterizer, slideConverter domain.SlideConverter, opts Options, logger *observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pipeline{
		rasterizer: rasterizer,
		slides:     slideConverter,
		opts:       opts,
		resizer: imaging.Resizer{
			MaxDimension:             opts.MaxDimension,
			PreserveSinglePageAspect: opts.PreserveSinglePageAspect,
		},
		logger: logger.WithOperation("normalize"),
	}
}

// WithProgress returns a copy of the pipeline that reports page progress.
func (p *Pipeline) WithProgress(fn ProgressFunc) *Pipeline {
	cp := *p
	cp.progress = fn
	return &cp
}

func (p *Pipeline) handler(format domain.SourceFormat) handlerFunc {
	switch format {
	case domain.RasterPassthrough:
		return p.passthrough
	case domain.PDFPage:
		return p.fromPDF
	case domain.SlideDeck:
		return p.fromSlides
	default:
		return nil
	}
}

// Normalize converts doc to one image. Documents with an unknown format are
// sniffed first. Errors are terminal and never come with partial output.
func (p *Pipeline) Normalize(ctx context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error) {
	if doc.Format == domain.FormatUnknown {
		format, mediaType, err := Detect(doc.Data, doc.MediaType)
		if err != nil {
			return nil, err
		}
		doc.Format = format
		doc.MediaType = mediaType
	}

	handle := p.handler(doc.Format)
	if handle == nil {
		return nil, domain.UnsupportedFormatError(fmt.Sprintf("no conversion path for format %s", doc.Format), nil)
	}

	start := time.Now()
	out, err := handle(ctx, doc)
	if err != nil {
		return nil, err
	}

	p.logger.WithContext(ctx).Info().
		Str("format", doc.Format.String()).
		Int64("input_bytes", doc.Size()).
		Int("output_bytes", len(out.Data)).
		Int("width", out.Width).
		Int("height", out.Height).
		Dur("elapsed", time.Since(start)).
		Msg("normalized document")

	return out, nil
}

func (p *Pipeline) passthrough(_ context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, domain.UnsupportedFormatError("image could not be decoded", err)
	}

	mediaType := doc.MediaType
	if mediaType == "" {
		mediaType = "image/" + format
	}

	return &domain.OutputImage{
		Data:      doc.Data,
		MediaType: mediaType,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

func (p *Pipeline) fromSlides(ctx context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error) {
	if limit := p.opts.MaxSlideBytes; limit > 0 && doc.Size() > limit {
		return nil, domain.PayloadTooLargeError(doc.Size(), limit)
	}
	if p.slides == nil {
		return nil, domain.CollaboratorError("slide conversion is not configured", nil)
	}

	pdfBytes, err := p.slides.ConvertToPDF(ctx, doc.Data)
	if err != nil {
		return nil, err
	}

	return p.fromPDF(ctx, domain.DocumentBytes{
		Name:      doc.Name,
		Data:      pdfBytes,
		Format:    domain.PDFPage,
		MediaType: mimePDF,
	})
}

func (p *Pipeline) fromPDF(_ context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error) {
	src, err := p.rasterizer.Open(doc, p.opts.DPI)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	total := src.PageCount()
	pages := make([]domain.RasterPage, 0, total)
	for {
		page, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
		if p.progress != nil {
			p.progress(len(pages), total)
		}
	}

	var composed domain.ComposedImage
	switch len(pages) {
	case 0:
		return nil, domain.EmptyDocumentError("document rendered no pages")
	case 1:
		composed = imaging.Single(pages[0])
	default:
		composed, err = imaging.Stitch(pages)
		if err != nil {
			return nil, err
		}
	}

	resized, err := p.resizer.Resize(composed)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Int("pages", composed.Pages).
		Int("composed_width", composed.Image.Bounds().Dx()).
		Int("composed_height", composed.Image.Bounds().Dy()).
		Msg("rasterized document")

	return imaging.EncodeJPEG(resized, p.opts.Quality)
}
