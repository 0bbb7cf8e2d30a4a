package mlscore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// prediction is the JSON reply expected from the vision models.
type prediction struct {
	Confidence float64 `json:"confidence"`
}

// parseConfidenceJSON extracts the confidence prediction from a model reply.
// Models wrap JSON in markdown fences or prose often enough that the object
// is located positionally rather than trusting the whole reply.
func parseConfidenceJSON(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return 0, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return 0, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var p prediction
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return 0, fmt.Errorf("unmarshaling json: %w", err)
	}

	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}
	return p.Confidence, nil
}

// scorePrompt asks a vision model to grade one decoded read against the
// source image.
func scorePrompt(value, symbology string) string {
	return fmt.Sprintf(`You are verifying a barcode decode result. The image contains a ticket barcode that was machine-decoded as:

  value: %q
  symbology: %s

Look at the barcode in the image and judge how plausible this decode is: bar widths, quiet zones, and whether the printed human-readable digits (if any) match the decoded value.

Return ONLY valid JSON in this exact format:
{
  "confidence": 0.0
}

The confidence must be a number between 0 and 1. Do not include any text before or after the JSON. Do not use markdown code blocks.`, value, symbology)
}
