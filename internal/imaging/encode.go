package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/bmf87/l3vision/internal/domain"
)

const (
	DefaultQuality = 75

	// maxJPEGSide is the JPEG format's limit on either dimension.
	maxJPEGSide = 65535
)

type opaquer interface {
	Opaque() bool
}

// EncodeJPEG serializes img as a baseline JPEG. Transparent pixels are
// composited over white first.
func EncodeJPEG(img image.Image, quality int) (*domain.OutputImage, error) {
	if quality == 0 {
		quality = DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, domain.EncodingError(fmt.Sprintf("cannot encode a %dx%d image", b.Dx(), b.Dy()), nil)
	}
	if b.Dx() > maxJPEGSide || b.Dy() > maxJPEGSide {
		return nil, domain.EncodingError(
			fmt.Sprintf("image %dx%d exceeds the JPEG limit of %d pixels per side", b.Dx(), b.Dy(), maxJPEGSide), nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, domain.EncodingError("jpeg encode failed", err)
	}

	return &domain.OutputImage{
		Data:      buf.Bytes(),
		MediaType: domain.MediaTypeJPEG,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// flatten drops the alpha channel by drawing over an opaque white canvas.
func flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}
