package ocr

import (
	"context"
	"sync"
)

// Result is the outcome of one capture attempt. Value is the extracted
// candidate reading as entered-text; Err is set when recognition or
// extraction failed, in which case the caller falls back to manual entry.
type Result struct {
	Value string
	Err   error
}

// Session serializes capture attempts against a single Recognizer. Each
// attempt gets a monotonically increasing token; when a newer attempt has
// started before an older one completes, the older result is delivered as
// ErrSuperseded instead of its value, so a retake can never overwrite a
// fresher entry.
type Session struct {
	recognizer Recognizer

	mu      sync.Mutex
	attempt uint64
}

// NewSession creates a capture session backed by the given recognizer
func NewSession(recognizer Recognizer) *Session {
	return &Session{recognizer: recognizer}
}

// Capture starts recognition of a meter photo and invokes apply exactly
// once with the outcome. The returned token identifies the attempt.
func (s *Session) Capture(ctx context.Context, image []byte, contentType string, apply func(Result)) uint64 {
	s.mu.Lock()
	s.attempt++
	token := s.attempt
	s.mu.Unlock()

	go func() {
		var result Result
		text, err := s.recognizer.RecognizeText(ctx, image, contentType)
		if err != nil {
			result.Err = err
		} else {
			result.Value, result.Err = ExtractReading(text)
		}

		s.mu.Lock()
		stale := token != s.attempt
		s.mu.Unlock()

		if stale {
			apply(Result{Err: ErrSuperseded})
			return
		}
		apply(result)
	}()

	return token
}

// Cancel invalidates any in-flight attempt without starting a new one
func (s *Session) Cancel() {
	s.mu.Lock()
	s.attempt++
	s.mu.Unlock()
}

// Close closes the underlying recognizer
func (s *Session) Close() error {
	return s.recognizer.Close()
}
