package models

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// Attachment validation errors.
var (
	ErrInvalidAttachmentID = errors.New("attachment id is required")
	ErrInvalidMessageRef   = errors.New("attachment message id is required")
	ErrInvalidPath         = errors.New("attachment path is required")
	ErrInvalidAspectRatio  = errors.New("aspect ratio must be positive")
)

// AttachmentVariant selects how an attachment is rendered.
type AttachmentVariant string

const (
	VariantImage AttachmentVariant = "image"
	VariantFile  AttachmentVariant = "file"
)

const defaultMimeType = "application/octet-stream"

// Attachment is a stored file referenced by exactly one message.
type Attachment struct {
	ID string `json:"id"`

	// MessageID is a back-reference to the owning message.
	MessageID string `json:"message_id"`

	// Path is an opaque storage locator.
	Path string `json:"path"`

	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`

	// AspectRatio is width/height when known.
	AspectRatio *float64 `json:"aspect_ratio"`
}

// IsImage reports whether the mime type belongs to the image family.
func (a Attachment) IsImage() bool {
	mediaType := strings.ToLower(strings.TrimSpace(a.MimeType))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	return strings.HasPrefix(mediaType, "image/")
}

// Variant returns the rendering variant for the attachment.
func (a Attachment) Variant() AttachmentVariant {
	if a.IsImage() {
		return VariantImage
	}
	return VariantFile
}

// DisplayAspectRatio returns the ratio used to size an image preview.
// Images without a stored ratio render square; non-images have no ratio.
func (a Attachment) DisplayAspectRatio() float64 {
	if !a.IsImage() {
		return 0
	}
	if a.AspectRatio == nil || *a.AspectRatio <= 0 {
		return 1
	}
	return *a.AspectRatio
}

// Clone returns a deep copy.
func (a Attachment) Clone() Attachment {
	out := a
	if a.AspectRatio != nil {
		ratio := *a.AspectRatio
		out.AspectRatio = &ratio
	}
	return out
}

// Validate checks the fields a backend write requires.
func (a Attachment) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(a.ID) == "" {
		validation.Add("id", ErrInvalidAttachmentID)
	}
	if strings.TrimSpace(a.MessageID) == "" {
		validation.Add("message_id", ErrInvalidMessageRef)
	}
	if strings.TrimSpace(a.Path) == "" {
		validation.Add("path", ErrInvalidPath)
	}
	if a.AspectRatio != nil && *a.AspectRatio <= 0 {
		validation.Add("aspect_ratio", ErrInvalidAspectRatio)
	}
	return validation.Err()
}

// MimeTypeForPath guesses a mime type from the file extension.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return defaultMimeType
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		return guessed
	}
	return defaultMimeType
}

func attachmentField(i int) string {
	return fmt.Sprintf("attachments[%d]", i)
}
