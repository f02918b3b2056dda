package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultSpaceURL is the public OCR.space recognition endpoint
const DefaultSpaceURL = "https://api.ocr.space/parse/image"

// Space implements the Recognizer interface using the OCR.space API
type Space struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewSpace creates a new OCR.space Recognizer instance
func NewSpace(apiURL, apiKey string) (*Space, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ocr.space api key is required")
	}
	if apiURL == "" {
		apiURL = DefaultSpaceURL
	}

	return &Space{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// spaceResponse is the subset of the OCR.space response body we consume
type spaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	// ErrorMessage comes back as a string or an array of strings depending
	// on the failure, so it is decoded loosely
	ErrorMessage any `json:"ErrorMessage"`
}

// RecognizeText posts the photo to OCR.space and returns the parsed text.
// The recognition options are fixed: English, engine 2, no table mode,
// upscaling enabled.
func (o *Space) RecognizeText(ctx context.Context, image []byte, contentType string) (string, error) {
	// Normalize HEIC/PDF phone captures to PNG before upload
	finalImage, _, _, err := prepareImage(image, contentType)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "meter.png")
	if err != nil {
		return "", fmt.Errorf("building form: %w", err)
	}
	if _, err := part.Write(finalImage); err != nil {
		return "", fmt.Errorf("writing image to form: %w", err)
	}

	fields := map[string]string{
		"apikey":            o.apiKey,
		"language":          "eng",
		"isOverlayRequired": "false",
		"detectOrientation": "false",
		"isTable":           "false",
		"scale":             "true",
		"OCREngine":         "2",
	}
	for name, value := range fields {
		if err := form.WriteField(name, value); err != nil {
			return "", fmt.Errorf("writing form field %s: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ocr.space API: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("ocr.space API returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var parsed spaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", ErrUnavailable)
	}

	if parsed.IsErroredOnProcessing {
		msg := "processing error"
		if parsed.ErrorMessage != nil {
			msg = strings.TrimSpace(fmt.Sprintf("%v", parsed.ErrorMessage))
		}
		return "", fmt.Errorf("ocr.space reported an error: %s: %w", msg, ErrUnavailable)
	}

	if len(parsed.ParsedResults) == 0 {
		return "", nil
	}
	return parsed.ParsedResults[0].ParsedText, nil
}

// Close closes the OCR.space client (no-op for HTTP client)
func (o *Space) Close() error {
	return nil
}
