package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// meterReadPrompt asks the model for a plain transcription. The numeric
// candidate is picked out afterwards by ExtractReading, the same way the
// OCR.space text is handled.
const meterReadPrompt = `This is a photo of a utility meter. Transcribe every piece of text and every digit sequence visible in the image, exactly as printed, one item per line. Include the main meter display value with all of its digits, including leading zeros. Do not interpret, convert or annotate anything; output only the transcribed text.`

// Gemini implements the Recognizer interface using Google Gemini vision
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Recognizer instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// RecognizeText asks Gemini to transcribe the meter photo
func (g *Gemini) RecognizeText(ctx context.Context, image []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	finalImage, _, _, err := prepareImage(image, contentType)
	if err != nil {
		return "", err
	}

	// prepareImage always yields PNG, and genai.ImageData wants just the
	// format suffix
	parts := []genai.Part{
		genai.ImageData("png", finalImage),
		genai.Text(meterReadPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", ErrUnavailable)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from gemini: %w", ErrUnavailable)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return strings.TrimSpace(responseText.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
