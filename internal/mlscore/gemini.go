package mlscore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ohta-d/barcode-scan-api/internal/decode"
)

// Gemini implements the decode.Ranker interface using Google Gemini.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini ranker instance.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Score grades a decoded value against the source image.
func (g *Gemini) Score(ctx context.Context, imagePNG []byte, value string, symbology decode.Symbology) (float64, error) {
	parts := []genai.Part{
		genai.ImageData("png", imagePNG),
		genai.Text(scorePrompt(value, string(symbology))),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return 0, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return 0, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	confidence, err := parseConfidenceJSON(responseText.String())
	if err != nil {
		return 0, fmt.Errorf("parsing prediction: %w", err)
	}
	return confidence, nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
