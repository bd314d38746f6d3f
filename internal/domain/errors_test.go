package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByType(t *testing.T) {
	err := fmt.Errorf("normalize: %w", EmptyDocumentError("PDF has no pages"))

	assert.True(t, errors.Is(err, ErrEmptyDocument))
	assert.False(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, ErrorTypeEmptyDocument, TypeOf(err))
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := CollaboratorError("slide conversion failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[collaborator_failure] slide conversion failed: connection reset", err.Error())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "payload too large",
			err:  PayloadTooLargeError(4<<20, 3<<20),
			want: "3MB limit",
		},
		{
			name: "rate limited",
			err:  RateLimitError("429", nil),
			want: "Rate limits",
		},
		{
			name: "validation passes message through",
			err:  ValidationError("prompt is required", nil),
			want: "prompt is required",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.want)
		})
	}
}

func TestParseAvatar(t *testing.T) {
	a, err := ParseAvatar(" Hacker ")
	assert.NoError(t, err)
	assert.Equal(t, AvatarHacker, a)
	assert.Equal(t, "/static/images/hacker.svg", a.ImagePath())

	_, err = ParseAvatar("robot")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSourceFormat_String(t *testing.T) {
	assert.Equal(t, "pdf", PDFPage.String())
	assert.Equal(t, "slide_deck", SlideDeck.String())
	assert.Equal(t, "raster", RasterPassthrough.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}
