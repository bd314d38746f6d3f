// Package imaging composes, resizes and encodes rendered document pages.
package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bmf87/l3vision/internal/domain"
)

// Stitch concatenates pages vertically in input order. The canvas is as
// wide as the widest page and as tall as all pages together. Narrower pages
// are left-aligned and the uncovered area stays opaque black.
func Stitch(pages []domain.RasterPage) (domain.ComposedImage, error) {
	if len(pages) == 0 {
		return domain.ComposedImage{}, domain.NoPagesToStitchError()
	}

	width, height := 0, 0
	for _, p := range pages {
		if p.Width() > width {
			width = p.Width()
		}
		height += p.Height()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	y := 0
	for _, p := range pages {
		b := p.Image.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, p.Image, b.Min, draw.Src)
		y += b.Dy()
	}

	return domain.ComposedImage{Image: canvas, Pages: len(pages)}, nil
}

// Single wraps a lone page without copying it.
func Single(page domain.RasterPage) domain.ComposedImage {
	return domain.ComposedImage{Image: page.Image, Pages: 1}
}
