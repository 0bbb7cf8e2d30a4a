package decode

import (
	"context"

	"github.com/ohta-d/barcode-scan-api/internal/imaging"
)

// Symbology is a supported barcode encoding standard.
type Symbology string

const (
	Code128 Symbology = "CODE128"
	Code39  Symbology = "CODE39"
	EAN13   Symbology = "EAN13"
	ITF     Symbology = "ITF"
	Codabar Symbology = "CODABAR"
	Code93  Symbology = "CODE93"
)

// Candidate is one raw decode attempt's output before cross-engine
// reconciliation. Multiple candidates may share the same Value.
type Candidate struct {
	Value            string    `json:"raw_value"`
	Symbology        Symbology `json:"symbology"`
	EngineID         string    `json:"engine_id"`
	VariantTag       string    `json:"variant_tag"`
	NativeConfidence float64   `json:"native_confidence"`
}

// Engine is one pluggable decoding strategy. Decode returns zero or more
// candidates; "no barcode found" is an empty result, not an error. A format
// hint narrows the symbologies an engine considers, empty means all.
type Engine interface {
	// ID identifies the engine in processing metadata.
	ID() string
	// Decode scans one image variant for barcodes.
	Decode(ctx context.Context, v imaging.Variant, hint Symbology) ([]Candidate, error)
}
