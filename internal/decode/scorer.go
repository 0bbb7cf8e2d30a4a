package decode

import (
	"context"
	"log/slog"
	"sort"
)

const (
	agreementBonus    = 0.05
	agreementBonusCap = 0.15
)

// Ranker is an optional ML re-scoring capability consumed as a black box.
// Implementations live in internal/mlscore.
type Ranker interface {
	// Score grades how plausible a decoded value is for the given image,
	// returning a confidence in [0,1].
	Score(ctx context.Context, imagePNG []byte, value string, symbology Symbology) (float64, error)
	// Close releases backend resources.
	Close() error
}

// Scored is the winning candidate with its final confidence.
type Scored struct {
	Candidate
	FinalConfidence float64
}

// Scorer reconciles divergent candidate reads into one result.
type Scorer struct {
	ranker Ranker
}

// NewScorer creates a scorer. ranker may be nil when no ML capability is
// configured.
func NewScorer(ranker Ranker) *Scorer {
	return &Scorer{ranker: ranker}
}

type group struct {
	value      string
	symbology  Symbology
	members    []Candidate
	best       Candidate // representative for tie-breaking
	bestVar    int
	bestEng    int
	confidence float64
}

// Best picks the highest-scoring candidate group. Candidates sharing a value
// and symbology reinforce each other: the base score is the best native
// confidence in the group, plus a capped bonus per additional distinct engine
// or variant. When ML re-scoring is enabled and more than one group exists,
// the ranker's output replaces the base score. Ties break on native
// confidence, then variant priority, then engine registration order.
//
// The second return is false when no candidates exist; the third reports
// whether the ML prediction was applied.
func (s *Scorer) Best(ctx context.Context, out Outcome, imagePNG []byte, enableML bool) (Scored, bool, bool) {
	if len(out.Candidates) == 0 {
		return Scored{}, false, false
	}

	variantIdx := indexOf(out.VariantsTried)
	engineIdx := indexOf(out.EnginesTried)
	groups := buildGroups(out.Candidates, variantIdx, engineIdx)

	mlUsed := false
	if enableML && s.ranker != nil && len(groups) > 1 {
		mlUsed = s.rescore(ctx, groups, imagePNG)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.best.NativeConfidence != b.best.NativeConfidence {
			return a.best.NativeConfidence > b.best.NativeConfidence
		}
		if a.bestVar != b.bestVar {
			return a.bestVar < b.bestVar
		}
		return a.bestEng < b.bestEng
	})

	winner := groups[0]
	return Scored{
		Candidate:       winner.best,
		FinalConfidence: winner.confidence,
	}, true, mlUsed
}

func buildGroups(candidates []Candidate, variantIdx, engineIdx map[string]int) []*group {
	byKey := make(map[string]*group)
	var groups []*group

	for _, c := range candidates {
		key := c.Value + "\x00" + string(c.Symbology)
		g, ok := byKey[key]
		if !ok {
			g = &group{
				value:     c.Value,
				symbology: c.Symbology,
				best:      c,
				bestVar:   variantIdx[c.VariantTag],
				bestEng:   engineIdx[c.EngineID],
			}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, c)

		cVar, cEng := variantIdx[c.VariantTag], engineIdx[c.EngineID]
		if c.NativeConfidence > g.best.NativeConfidence ||
			(c.NativeConfidence == g.best.NativeConfidence &&
				(cVar < g.bestVar || (cVar == g.bestVar && cEng < g.bestEng))) {
			g.best, g.bestVar, g.bestEng = c, cVar, cEng
		}
	}

	for _, g := range groups {
		g.confidence = clamp(g.best.NativeConfidence + bonus(g.members))
	}
	return groups
}

// bonus rewards agreement: each additional distinct engine or variant that
// reported the same value adds a small increment, capped.
func bonus(members []Candidate) float64 {
	engines := make(map[string]bool)
	variants := make(map[string]bool)
	for _, c := range members {
		engines[c.EngineID] = true
		variants[c.VariantTag] = true
	}
	extra := float64(len(engines)-1) + float64(len(variants)-1)
	b := agreementBonus * extra
	if b > agreementBonusCap {
		b = agreementBonusCap
	}
	return b
}

// rescore replaces each group's base score with the ranker's prediction. A
// ranker failure abandons ML for the whole request so scoring stays
// deterministic; the native scores stand.
func (s *Scorer) rescore(ctx context.Context, groups []*group, imagePNG []byte) bool {
	rescored := make([]float64, len(groups))
	for i, g := range groups {
		score, err := s.ranker.Score(ctx, imagePNG, g.value, g.symbology)
		if err != nil {
			slog.Warn("ml rescoring failed, using native scores", "value", g.value, "error", err)
			return false
		}
		rescored[i] = clamp(clamp(score) + bonus(g.members))
	}
	for i, g := range groups {
		g.confidence = rescored[i]
	}
	return true
}

func indexOf(items []string) map[string]int {
	idx := make(map[string]int, len(items))
	for i, item := range items {
		idx[item] = i
	}
	return idx
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
