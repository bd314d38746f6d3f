package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies domain errors
type ErrorType string

const (
	ErrorTypeUnsupportedFormat   ErrorType = "unsupported_format"
	ErrorTypeEmptyDocument       ErrorType = "empty_document"
	ErrorTypeNoPagesToStitch     ErrorType = "no_pages_to_stitch"
	ErrorTypeEncodingFailure     ErrorType = "encoding_failure"
	ErrorTypePayloadTooLarge     ErrorType = "payload_too_large"
	ErrorTypeCollaboratorFailure ErrorType = "collaborator_failure"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeAPI                 ErrorType = "api"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeConfig              ErrorType = "config"
	ErrorTypeIO                  ErrorType = "io"
	ErrorTypeAuth                ErrorType = "auth"
)

// Sentinels for errors.Is. A DomainError matches a sentinel of the same Type.
var (
	ErrUnsupportedFormat   = &DomainError{Type: ErrorTypeUnsupportedFormat}
	ErrEmptyDocument       = &DomainError{Type: ErrorTypeEmptyDocument}
	ErrNoPagesToStitch     = &DomainError{Type: ErrorTypeNoPagesToStitch}
	ErrEncodingFailure     = &DomainError{Type: ErrorTypeEncodingFailure}
	ErrPayloadTooLarge     = &DomainError{Type: ErrorTypePayloadTooLarge}
	ErrCollaboratorFailure = &DomainError{Type: ErrorTypeCollaboratorFailure}
	ErrValidation          = &DomainError{Type: ErrorTypeValidation}
	ErrAPI                 = &DomainError{Type: ErrorTypeAPI}
	ErrRateLimited         = &DomainError{Type: ErrorTypeRateLimited}
	ErrConfig              = &DomainError{Type: ErrorTypeConfig}
	ErrIO                  = &DomainError{Type: ErrorTypeIO}
	ErrAuth                = &DomainError{Type: ErrorTypeAuth}
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func UnsupportedFormatError(message string, err error) *DomainError {
	return NewError(ErrorTypeUnsupportedFormat, message, err)
}

func EmptyDocumentError(message string) *DomainError {
	return NewError(ErrorTypeEmptyDocument, message, nil)
}

func NoPagesToStitchError() *DomainError {
	return NewError(ErrorTypeNoPagesToStitch, "no pages to stitch", nil)
}

func EncodingError(message string, err error) *DomainError {
	return NewError(ErrorTypeEncodingFailure, message, err)
}

func PayloadTooLargeError(size, limit int64) *DomainError {
	return NewError(ErrorTypePayloadTooLarge,
		fmt.Sprintf("payload of %d bytes exceeds the %d byte limit", size, limit), nil)
}

func CollaboratorError(message string, err error) *DomainError {
	return NewError(ErrorTypeCollaboratorFailure, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func RateLimitError(message string, err error) *DomainError {
	return NewError(ErrorTypeRateLimited, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func AuthError(message string, err error) *DomainError {
	return NewError(ErrorTypeAuth, message, err)
}

// TypeOf returns the ErrorType of the first DomainError in err's chain, or "".
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// UserMessage returns the single message shown to the user for a failed
// invocation. Details stay in the logs.
func UserMessage(err error) string {
	switch TypeOf(err) {
	case ErrorTypeUnsupportedFormat:
		return "The uploaded file format is not supported. Please upload a PDF, PPTX or JPEG/PNG/GIF/WEBP image."
	case ErrorTypeEmptyDocument:
		return "The uploaded document has no pages."
	case ErrorTypeNoPagesToStitch, ErrorTypeEncodingFailure:
		return "Failed to convert the document to a JPEG image. Please investigate the file format and content."
	case ErrorTypePayloadTooLarge:
		return "The uploaded presentation is larger than the 3MB limit imposed by the conversion API. " +
			"Please upload a smaller presentation or convert it to PDF first."
	case ErrorTypeCollaboratorFailure:
		return "Failed to convert the presentation to a JPEG image. Please try again later or convert it to PDF first."
	case ErrorTypeRateLimited:
		return "Rate limits have been exceeded on the model endpoint. Sorry for the inconvenience! Please try again later."
	case ErrorTypeValidation:
		var de *DomainError
		errors.As(err, &de)
		return de.Message
	case ErrorTypeAuth:
		return "You need to sign in again."
	case "":
		return "Something went wrong. Please try again."
	default:
		return "Failed to generate a response from the model. Please try again."
	}
}
