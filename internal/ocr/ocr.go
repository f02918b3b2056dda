package ocr

import (
	"context"
	"errors"
)

var (
	// ErrNoNumericContent indicates the recognized text contains no numeric token
	ErrNoNumericContent = errors.New("no numbers found in the recognized text")

	// ErrUnavailable indicates the recognition backend failed or rejected the request
	ErrUnavailable = errors.New("text recognition unavailable")

	// ErrSuperseded indicates a newer capture attempt replaced this one
	ErrSuperseded = errors.New("capture superseded by a newer attempt")
)

// Recognizer defines the interface for turning a meter photo into free text.
// Implementations are black boxes: callers only ever consume the text
// through ExtractReading.
type Recognizer interface {
	// RecognizeText runs text recognition on an image and returns the raw text
	RecognizeText(ctx context.Context, image []byte, contentType string) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}
