// Package testutil builds document and image fixtures for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/signintech/gopdf"
)

// PageSpec describes one fixture page in pixels at a given DPI.
type PageSpec struct {
	Width  int
	Height int
	Fill   color.RGBA
}

// PDF builds a PDF whose pages render to exactly the given pixel sizes at dpi.
// Each page is filled with its color so page order can be checked after
// rasterization.
func PDF(t testing.TB, dpi int, pages ...PageSpec) []byte {
	t.Helper()

	toPt := func(px int) float64 { return float64(px) * 72 / float64(dpi) }

	doc := gopdf.GoPdf{}
	doc.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	for _, p := range pages {
		w, h := toPt(p.Width), toPt(p.Height)
		doc.AddPageWithOption(gopdf.PageOption{PageSize: &gopdf.Rect{W: w, H: h}})
		doc.SetFillColor(p.Fill.R, p.Fill.G, p.Fill.B)
		doc.RectFromUpperLeftWithStyle(0, 0, w, h, "F")
	}

	return doc.GetBytesPdf()
}

// SolidImage returns an opaque RGBA image of the given size and color.
func SolidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// PNG encodes a solid PNG of the given size.
func PNG(t testing.TB, w, h int, c color.RGBA) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, SolidImage(w, h, c)); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}

// Marker colors used to tell pages apart.
var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	Blue  = color.RGBA{B: 255, A: 255}
)

// Models returns a provider to model mapping shaped like the shipped catalog.
func Models() map[string][]string {
	return map[string][]string{
		"llama": {
			"meta-llama/llama-3.2-11b-vision-instruct",
			"meta-llama/llama-4-maverick",
		},
		"google": {
			"google/gemini-3-pro-preview",
		},
	}
}
