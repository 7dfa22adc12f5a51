package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fitfield/tryon-backend/pkg/enums"
)

// Image is a render input, given either as a filesystem path or raw bytes.
// Adapters convert it to whatever their transport requires.
type Image struct {
	Path     string
	Data     []byte
	MimeType string
}

// Bytes returns the image payload, reading from Path when Data is empty.
func (i Image) Bytes() ([]byte, error) {
	if len(i.Data) > 0 {
		return i.Data, nil
	}
	if i.Path == "" {
		return nil, fmt.Errorf("image has neither data nor path")
	}
	data, err := os.ReadFile(i.Path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", i.Path, err)
	}
	return data, nil
}

// DataURI encodes the image as a base64 data URI for JSON transports.
func (i Image) DataURI() (string, error) {
	data, err := i.Bytes()
	if err != nil {
		return "", err
	}
	mime := i.MimeType
	if mime == "" {
		mime = mimeTypeFromPath(i.Path)
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

func mimeTypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// SubmitOptions carries the per-request knobs shared by all adapters.
type SubmitOptions struct {
	Category    enums.GarmentCategory
	CallbackURL string
}

// Submission is the provider's acknowledgement of an accepted render.
type Submission struct {
	JobID string
}

// Result is a finished try-on image, delivered either as a URL the caller
// downloads or as raw bytes already in hand.
type Result struct {
	ImageURL string
	Data     []byte
	MimeType string
}

// Provider is the uniform surface over the interchangeable render backends.
// GetResult returns nil, nil while the job is still in flight or unknown.
type Provider interface {
	Name() enums.ProviderName
	SupportedCategories() []enums.GarmentCategory
	SubmitRender(ctx context.Context, person, garment Image, opts SubmitOptions) (*Submission, error)
	GetResult(ctx context.Context, jobID string) (*Result, error)
}

// Error is a provider-reported failure carrying the upstream HTTP status so
// callers can classify retriability without string matching.
type Error struct {
	Provider   enums.ProviderName
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Retriable reports whether the failure is server-side and worth one retry.
func (e *Error) Retriable() bool {
	return e.StatusCode >= 500
}
