package normalize

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bmf87/l3vision/internal/domain"
)

const (
	mimePDF  = "application/pdf"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

var rasterTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Generic containers whose sniffed type says less than the declared one.
var containerTypes = map[string]struct{}{
	"application/zip":           {},
	"application/x-ole-storage": {},
	"application/octet-stream":  {},
}

// Detect classifies an upload by its content. The declared media type (from
// the multipart header or file extension) is only consulted when sniffing
// yields a generic container.
func Detect(data []byte, declared string) (domain.SourceFormat, string, error) {
	if len(data) == 0 {
		return domain.FormatUnknown, "", domain.ValidationError("uploaded file is empty", nil)
	}

	sniffed := mimetype.Detect(data)
	mediaType := baseType(sniffed.String())

	if _, generic := containerTypes[mediaType]; generic && declared != "" {
		mediaType = baseType(declared)
	}

	switch {
	case mediaType == mimePDF:
		return domain.PDFPage, mediaType, nil
	case mediaType == mimePPTX:
		return domain.SlideDeck, mediaType, nil
	}
	if _, ok := rasterTypes[mediaType]; ok {
		return domain.RasterPassthrough, mediaType, nil
	}

	return domain.FormatUnknown, mediaType, domain.UnsupportedFormatError(fmt.Sprintf("unsupported media type %q", mediaType), nil)
}

// DeclaredFromName guesses a media type from a file extension.
func DeclaredFromName(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ""
	}
	ext := strings.ToLower(name[i:])
	if ext == ".pptx" {
		return mimePPTX
	}
	return mime.TypeByExtension(ext)
}

func baseType(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
