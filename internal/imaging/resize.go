package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	"github.com/bmf87/l3vision/internal/domain"
)

// Resizer fits images to the model's dimension constraint.
type Resizer struct {
	MaxDimension int
	// PreserveSinglePageAspect applies the composite rule to single pages.
	PreserveSinglePageAspect bool
}

// TargetSize returns the output dimensions for an image of w x h.
//
// Single pages become exactly max x max. Composites (and single pages when
// PreserveSinglePageAspect is set) get width max and a proportional height
// of at least 1.
func (r Resizer) TargetSize(w, h int, composite bool) (int, int) {
	m := r.MaxDimension
	if !composite && !r.PreserveSinglePageAspect {
		return m, m
	}

	height := int(math.Round(float64(m) * float64(h) / float64(w)))
	if height < 1 {
		height = 1
	}
	return m, height
}

// Resize scales the composed image with Lanczos resampling.
func (r Resizer) Resize(c domain.ComposedImage) (image.Image, error) {
	if r.MaxDimension < 1 {
		return nil, domain.ValidationError(fmt.Sprintf("max dimension must be positive, got %d", r.MaxDimension), nil)
	}

	b := c.Image.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, domain.EncodingError(fmt.Sprintf("cannot resize a %dx%d image", b.Dx(), b.Dy()), nil)
	}

	w, h := r.TargetSize(b.Dx(), b.Dy(), c.IsComposite())
	if w == b.Dx() && h == b.Dy() {
		return c.Image, nil
	}

	return resize.Resize(uint(w), uint(h), c.Image, resize.Lanczos3), nil
}
