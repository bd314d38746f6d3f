package domain

import (
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"time"
)

// MediaTypeJPEG is the media type of every converted document.
const MediaTypeJPEG = "image/jpeg"

// SourceFormat is the closed set of upload conversion paths.
type SourceFormat int

const (
	FormatUnknown SourceFormat = iota
	RasterPassthrough
	PDFPage
	SlideDeck
)

func (f SourceFormat) String() string {
	switch f {
	case RasterPassthrough:
		return "raster"
	case PDFPage:
		return "pdf"
	case SlideDeck:
		return "slide_deck"
	default:
		return "unknown"
	}
}

// DocumentBytes is an uploaded file. It is consumed once by the pipeline.
type DocumentBytes struct {
	Name   string
	Data   []byte
	Format SourceFormat
	// MediaType is the detected media type, used for raster passthrough.
	MediaType string
}

// Size returns the payload size in bytes
func (d DocumentBytes) Size() int64 {
	return int64(len(d.Data))
}

// RasterPage represents a single rendered document page
type RasterPage struct {
	PageNumber int // 1-based
	Image      image.Image
}

// Width returns the page width in pixels
func (p RasterPage) Width() int {
	return p.Image.Bounds().Dx()
}

// Height returns the page height in pixels
func (p RasterPage) Height() int {
	return p.Image.Bounds().Dy()
}

// ComposedImage is a single bitmap built from one or more pages.
type ComposedImage struct {
	Image image.Image
	Pages int
}

// IsComposite reports whether the image was stitched from several pages
func (c ComposedImage) IsComposite() bool {
	return c.Pages > 1
}

// OutputImage is the final encoded image handed to the vision model
type OutputImage struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// DataURI returns the image as a base64 data URI
func (o OutputImage) DataURI() string {
	return "data:" + o.MediaType + ";base64," + base64.StdEncoding.EncodeToString(o.Data)
}

// Role is the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Attachment is the name of the file the message was asked about.
	Attachment string    `json:"attachment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Avatar is the picture shown next to the user's messages
type Avatar string

const (
	AvatarMale   Avatar = "male"
	AvatarFemale Avatar = "female"
	AvatarHacker Avatar = "hacker"
)

// Avatars lists the selectable avatars in display order
var Avatars = []Avatar{AvatarMale, AvatarFemale, AvatarHacker}

// ParseAvatar validates an avatar name
func ParseAvatar(s string) (Avatar, error) {
	a := Avatar(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Avatars {
		if a == known {
			return a, nil
		}
	}
	return "", ValidationError(fmt.Sprintf("unknown avatar %q", s), nil)
}

// ImagePath returns the static asset for the avatar
func (a Avatar) ImagePath() string {
	return "/static/images/" + string(a) + ".svg"
}
