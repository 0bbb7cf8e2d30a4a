package decode

import (
	"context"
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/ohta-d/barcode-scan-api/internal/imaging"
)

// ZXing wraps the gozxing multi-format one-dimensional reader. Two
// registrations of this engine are used in production: a fast pass and a
// try-harder pass that trades time for recall on low-quality photos.
type ZXing struct {
	id               string
	tryHarder        bool
	nativeConfidence float64
}

// NewZXing creates the fast ZXing engine.
func NewZXing() *ZXing {
	return &ZXing{id: "zxing", nativeConfidence: 0.9}
}

// NewZXingTryHarder creates the exhaustive-search ZXing engine. It reports a
// slightly lower native confidence because it accepts weaker pattern matches.
func NewZXingTryHarder() *ZXing {
	return &ZXing{id: "zxing_harder", tryHarder: true, nativeConfidence: 0.8}
}

// ID identifies the engine in processing metadata.
func (z *ZXing) ID() string {
	return z.id
}

// onedReaders lists the format-specific gozxing readers in fixed trial
// order. gozxing ships no aggregate one-dimensional reader, so the engine
// drives each format itself. Readers are stateful, so a fresh one is
// constructed per trial.
var onedReaders = []struct {
	symbology Symbology
	construct func() gozxing.Reader
}{
	{Code128, oned.NewCode128Reader},
	{Code39, oned.NewCode39Reader},
	{EAN13, oned.NewEAN13Reader},
	{ITF, oned.NewITFReader},
	{Codabar, oned.NewCodaBarReader},
	{Code93, oned.NewCode93Reader},
}

// Decode scans one image variant with every supported format reader. gozxing
// reports "not found" as an error, so that case is translated to an empty
// candidate set here.
func (z *ZXing) Decode(ctx context.Context, v imaging.Variant, hint Symbology) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(v.Image)
	if err != nil {
		return nil, fmt.Errorf("building bitmap: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{}
	if z.tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	if formats := possibleFormats(hint); len(formats) > 0 {
		hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = formats
	}

	for _, entry := range onedReaders {
		if hint != "" && entry.symbology != hint {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		result, err := entry.construct().Decode(bmp, hints)
		if err != nil {
			// No barcode of this format in the variant.
			continue
		}
		symbology, ok := toSymbology(result.GetBarcodeFormat())
		if !ok {
			continue
		}
		// First hit wins, as with the upstream multi-format reader.
		return []Candidate{{
			Value:            result.GetText(),
			Symbology:        symbology,
			EngineID:         z.id,
			VariantTag:       v.Tag,
			NativeConfidence: z.nativeConfidence,
		}}, nil
	}
	return nil, nil
}

func possibleFormats(hint Symbology) []gozxing.BarcodeFormat {
	if f, ok := toZXingFormat(hint); ok {
		return []gozxing.BarcodeFormat{f}
	}
	return nil
}

func toZXingFormat(s Symbology) (gozxing.BarcodeFormat, bool) {
	switch s {
	case Code128:
		return gozxing.BarcodeFormat_CODE_128, true
	case Code39:
		return gozxing.BarcodeFormat_CODE_39, true
	case EAN13:
		return gozxing.BarcodeFormat_EAN_13, true
	case ITF:
		return gozxing.BarcodeFormat_ITF, true
	case Codabar:
		return gozxing.BarcodeFormat_CODABAR, true
	case Code93:
		return gozxing.BarcodeFormat_CODE_93, true
	}
	return 0, false
}

func toSymbology(f gozxing.BarcodeFormat) (Symbology, bool) {
	switch f {
	case gozxing.BarcodeFormat_CODE_128:
		return Code128, true
	case gozxing.BarcodeFormat_CODE_39:
		return Code39, true
	case gozxing.BarcodeFormat_EAN_13:
		return EAN13, true
	case gozxing.BarcodeFormat_ITF:
		return ITF, true
	case gozxing.BarcodeFormat_CODABAR:
		return Codabar, true
	case gozxing.BarcodeFormat_CODE_93:
		return Code93, true
	}
	return "", false
}

// ParseSymbology converts a caller-supplied format hint string. Unknown
// values return false rather than an error; a bad hint just means no
// narrowing.
func ParseSymbology(s string) (Symbology, bool) {
	switch Symbology(s) {
	case Code128, Code39, EAN13, ITF, Codabar, Code93:
		return Symbology(s), true
	}
	return "", false
}
