package ticket

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log/slog"
	"time"

	"github.com/ohta-d/barcode-scan-api/internal/decode"
	"github.com/ohta-d/barcode-scan-api/internal/imaging"
	"github.com/ohta-d/barcode-scan-api/internal/provider"
)

// ScanRequest is one image to decode plus the caller's optional hints.
type ScanRequest struct {
	Data        []byte
	ContentType string
	// ProviderHint reorders provider resolution; it never bypasses
	// validation.
	ProviderHint string
	// FormatHint narrows the symbologies engines consider.
	FormatHint string
	// EnableML overrides the configured ML re-scoring default when set.
	EnableML *bool
}

// Lookup consults previously stored decodes so a repeat scan of the same
// physical barcode can skip provider parsing.
type Lookup func(barcode string) (*StoredTicket, bool)

// Pipeline runs the single-image scan: load, preprocess, orchestrate
// engines, score, resolve provider, aggregate. All per-request state is
// constructed fresh per call.
type Pipeline struct {
	orch   *decode.Orchestrator
	scorer *decode.Scorer
	ranker decode.Ranker
	cfg    Config
	lookup Lookup
}

// NewPipeline creates a pipeline. ranker may be nil when no ML capability is
// configured; lookup may be nil when no store short-circuit is wanted.
func NewPipeline(engines []decode.Engine, ranker decode.Ranker, cfg Config) *Pipeline {
	return &Pipeline{
		orch:   decode.NewOrchestrator(engines, cfg.HighConfidence, cfg.EngineTimeout),
		scorer: decode.NewScorer(ranker),
		ranker: ranker,
		cfg:    cfg,
	}
}

// WithLookup returns the pipeline with a store short-circuit installed.
func (p *Pipeline) WithLookup(lookup Lookup) *Pipeline {
	p.lookup = lookup
	return p
}

// Scan decodes one image. It never panics or returns an error past this
// boundary: every failure mode becomes the error branch of the Result.
func (p *Pipeline) Scan(ctx context.Context, req ScanRequest) (result Result) {
	start := time.Now()
	info := ProcessingInfo{
		PreprocessingVariants: []string{},
		EnginesTried:          []string{},
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scan pipeline panicked", "panic", r)
			result = errorResult(CodeInternal, "internal error", info)
		}
		result.ProcessingInfo.TotalTimeMS = time.Since(start).Milliseconds()
	}()

	if p.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ItemTimeout)
		defer cancel()
	}

	img, err := imaging.Load(req.Data, req.ContentType)
	if err != nil {
		if errors.Is(err, imaging.ErrInvalidImage) {
			return errorResult(CodeInvalidImage, "image could not be decoded", info)
		}
		return errorResult(CodeInternal, "internal error", info)
	}

	variants := imaging.Variants(img, imaging.VariantConfig{
		Tags:        p.cfg.VariantTags,
		MaxVariants: p.cfg.MaxVariants,
	})

	hint, _ := decode.ParseSymbology(req.FormatHint)
	out := p.orch.Run(ctx, variants, hint)
	if out.VariantsTried != nil {
		info.PreprocessingVariants = out.VariantsTried
	}
	if out.EnginesTried != nil {
		info.EnginesTried = out.EnginesTried
	}

	if len(out.Candidates) == 0 {
		if ctx.Err() != nil {
			return errorResult(CodeTimeout, "scan timed out", info)
		}
		return errorResult(CodeNotFound, "no barcode found", info)
	}

	enableML := p.cfg.EnableML
	if req.EnableML != nil {
		enableML = *req.EnableML
	}
	var imagePNG []byte
	if enableML && p.ranker != nil {
		imagePNG = encodePNG(img)
	}

	best, ok, mlUsed := p.scorer.Best(ctx, out, imagePNG, enableML)
	info.MLPredictionUsed = mlUsed
	if !ok {
		return errorResult(CodeNotFound, "no barcode found", info)
	}

	match := p.resolveProvider(best.Value, req.ProviderHint)

	result = Result{
		Success:        true,
		BarcodeData:    best.Value,
		Format:         string(best.Symbology),
		Confidence:     best.FinalConfidence,
		ProcessingInfo: info,
	}
	p.applyProviderPolicy(&result, match)
	return result
}

// resolveProvider prefers a prior stored parse of the same barcode over
// re-running grammar resolution. The stored checksum outcome is carried over
// as-is: a repeat scan of the same physical barcode must report the same
// validity it did the first time.
func (p *Pipeline) resolveProvider(value, rawHint string) provider.Match {
	if p.lookup != nil {
		if stored, ok := p.lookup(value); ok && stored.Provider != "" {
			return provider.Match{
				Provider:      provider.ID(stored.Provider),
				Fields:        stored.ParsedFields,
				ChecksumValid: stored.ChecksumValid,
			}
		}
	}
	hint, _ := provider.ParseID(rawHint)
	return provider.Resolve(value, hint)
}

// applyProviderPolicy populates provider detail per the strictness policy: a
// failed checksum omits the provider info in strict mode and includes it
// flagged in lenient mode.
func (p *Pipeline) applyProviderPolicy(result *Result, match provider.Match) {
	if match.Provider == provider.None {
		return
	}
	if p.cfg.Strict && !match.ChecksumValid {
		return
	}
	valid := match.ChecksumValid
	result.Provider = string(match.Provider)
	result.ParsedData = match.Fields
	result.ChecksumValid = &valid
}

func encodePNG(img *imaging.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Pixels); err != nil {
		slog.Warn("encoding image for ml scoring failed", "error", err)
		return nil
	}
	return buf.Bytes()
}
