package decode

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"github.com/ohta-d/barcode-scan-api/internal/imaging"
)

// Outcome is the collected result of one orchestration run.
type Outcome struct {
	Candidates []Candidate
	// VariantsTried lists variant tags in invocation order, regardless of
	// whether any engine succeeded on them.
	VariantsTried []string
	// EnginesTried lists engine IDs in first-invocation order.
	EnginesTried []string
}

// Orchestrator drives the registered engines over preprocessed variants
// under an early-exit policy. Engine registration order is fixed so runs are
// reproducible.
type Orchestrator struct {
	engines       []Engine
	threshold     float64
	engineTimeout time.Duration
}

// NewOrchestrator creates an orchestrator. threshold is the native
// confidence above which a corroborated candidate stops the search.
// engineTimeout bounds each engine invocation; zero disables the bound.
func NewOrchestrator(engines []Engine, threshold float64, engineTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		engines:       engines,
		threshold:     threshold,
		engineTimeout: engineTimeout,
	}
}

// Engines returns the engine IDs in registration order.
func (o *Orchestrator) Engines() []string {
	ids := make([]string, len(o.engines))
	for i, e := range o.engines {
		ids[i] = e.ID()
	}
	return ids
}

// Run decodes variants in priority order. For each variant all engines fan
// out concurrently over the same read-only image; results are joined in
// registration order. Engine errors, panics and timeouts count as zero
// candidates and never abort the remaining matrix.
func (o *Orchestrator) Run(ctx context.Context, variants []imaging.Variant, hint Symbology) Outcome {
	var out Outcome
	seenEngine := make(map[string]bool)
	seenCandidate := make(map[Candidate]bool)

	for _, variant := range variants {
		if ctx.Err() != nil {
			break
		}
		out.VariantsTried = append(out.VariantsTried, variant.Tag)

		perEngine := make([][]Candidate, len(o.engines))
		var wg sync.WaitGroup
		for i, engine := range o.engines {
			if !seenEngine[engine.ID()] {
				seenEngine[engine.ID()] = true
				out.EnginesTried = append(out.EnginesTried, engine.ID())
			}
			wg.Add(1)
			go func(i int, engine Engine) {
				defer wg.Done()
				perEngine[i] = o.invoke(ctx, engine, variant, hint)
			}(i, engine)
		}
		wg.Wait()

		for _, candidates := range perEngine {
			for _, c := range candidates {
				if !plausible(c.Value) || seenCandidate[c] {
					continue
				}
				seenCandidate[c] = true
				out.Candidates = append(out.Candidates, c)
			}
		}

		if o.shouldStop(out.Candidates) {
			break
		}
	}
	return out
}

// invoke runs one engine over one variant, absorbing every failure mode into
// an empty candidate set. The decode runs in its own goroutine so an engine
// that never checks the context cannot hold the run past the invocation
// deadline; an overdue goroutine is abandoned and its result discarded.
func (o *Orchestrator) invoke(ctx context.Context, engine Engine, variant imaging.Variant, hint Symbology) []Candidate {
	if o.engineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.engineTimeout)
		defer cancel()
	}

	done := make(chan []Candidate, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("engine panicked", "engine", engine.ID(), "variant", variant.Tag, "panic", r)
				done <- nil
			}
		}()
		candidates, err := engine.Decode(ctx, variant, hint)
		if err != nil {
			slog.Warn("engine failed", "engine", engine.ID(), "variant", variant.Tag, "error", err)
			done <- nil
			return
		}
		done <- candidates
	}()

	select {
	case candidates := <-done:
		return candidates
	case <-ctx.Done():
		slog.Warn("engine abandoned", "engine", engine.ID(), "variant", variant.Tag, "error", ctx.Err())
		return nil
	}
}

// shouldStop reports whether a high-confidence candidate has been
// corroborated by a second engine or variant reporting the same value.
func (o *Orchestrator) shouldStop(candidates []Candidate) bool {
	for _, c := range candidates {
		if c.NativeConfidence < o.threshold {
			continue
		}
		for _, other := range candidates {
			if other.Value != c.Value {
				continue
			}
			if other.EngineID != c.EngineID || other.VariantTag != c.VariantTag {
				return true
			}
		}
	}
	return false
}

// plausible filters obvious decoder noise: ticket payloads are at least
// three printable characters.
func plausible(value string) bool {
	if len(value) < 3 {
		return false
	}
	for _, r := range value {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
