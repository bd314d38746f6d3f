package domain

import "context"

// PageSource is a lazy, finite, non-restartable sequence of rendered pages.
type PageSource interface {
	// Next returns the next page in document order, or io.EOF when exhausted.
	Next() (RasterPage, error)

	// PageCount returns the total number of pages in the document
	PageCount() int

	// Close releases the underlying document
	Close() error
}

// Rasterizer renders page-oriented documents into raster pages
type Rasterizer interface {
	Open(doc DocumentBytes, dpi int) (PageSource, error)
}

// SlideConverter turns a slide deck into PDF bytes via an external service
type SlideConverter interface {
	ConvertToPDF(ctx context.Context, deck []byte) ([]byte, error)
}

// Normalizer turns an uploaded document into a single model-ready image
type Normalizer interface {
	Normalize(ctx context.Context, doc DocumentBytes) (*OutputImage, error)
}

// VisionModel answers a question about an image
type VisionModel interface {
	// Ask sends the image and prompt to the model. Streamed chunks are sent to
	// chunkCh when it is non-nil; the full answer is returned.
	Ask(ctx context.Context, model string, img OutputImage, prompt string, chunkCh chan<- string) (string, error)
}
