package decode

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeRanker is a scripted ML re-scoring backend.
type fakeRanker struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *fakeRanker) Score(ctx context.Context, imagePNG []byte, value string, symbology Symbology) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[value], nil
}

func (f *fakeRanker) Close() error { return nil }

func candidate(value string, symbology Symbology, engine, variant string, confidence float64) Candidate {
	return Candidate{
		Value:            value,
		Symbology:        symbology,
		EngineID:         engine,
		VariantTag:       variant,
		NativeConfidence: confidence,
	}
}

var _ = Describe("Scorer", func() {
	var (
		out      Outcome
		ranker   *fakeRanker
		enableML bool
		best     Scored
		found    bool
		mlUsed   bool
	)

	BeforeEach(func() {
		ranker = nil
		enableML = false
		out = Outcome{
			VariantsTried: []string{"standard", "high_contrast", "rotated_90"},
			EnginesTried:  []string{"alpha", "beta"},
		}
	})

	JustBeforeEach(func() {
		var r Ranker
		if ranker != nil {
			r = ranker
		}
		best, found, mlUsed = NewScorer(r).Best(context.Background(), out, nil, enableML)
	})

	When("no candidates exist", func() {
		It("reports nothing found", func() {
			Expect(found).To(BeFalse())
		})
	})

	When("a single engine reports a single read", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("641234567890", EAN13, "alpha", "standard", 0.8),
			}
		})

		It("scores it at its native confidence", func() {
			Expect(found).To(BeTrue())
			Expect(best.FinalConfidence).To(BeNumerically("==", 0.8))
			Expect(mlUsed).To(BeFalse())
		})
	})

	When("a second engine corroborates the same value", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("641234567890", EAN13, "alpha", "standard", 0.8),
				candidate("641234567890", EAN13, "beta", "standard", 0.6),
			}
		})

		It("adds the agreement bonus to the best native confidence", func() {
			Expect(best.FinalConfidence).To(BeNumerically("~", 0.85, 1e-9))
		})

		It("keeps the higher-confidence member as representative", func() {
			Expect(best.EngineID).To(Equal("alpha"))
		})
	})

	When("many engines and variants agree", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("641234567890", EAN13, "alpha", "standard", 0.9),
				candidate("641234567890", EAN13, "beta", "standard", 0.9),
				candidate("641234567890", EAN13, "alpha", "high_contrast", 0.9),
				candidate("641234567890", EAN13, "beta", "rotated_90", 0.9),
			}
		})

		It("caps the agreement bonus", func() {
			Expect(best.FinalConfidence).To(BeNumerically("~", 0.9+0.15, 1e-9))
		})

		It("never exceeds 1.0", func() {
			Expect(best.FinalConfidence).To(BeNumerically("<=", 1.0))
		})
	})

	When("the corroborated value beats a lone higher-confidence read", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("999999999999", EAN13, "alpha", "standard", 0.82),
				candidate("641234567890", EAN13, "alpha", "standard", 0.8),
				candidate("641234567890", EAN13, "beta", "high_contrast", 0.78),
			}
		})

		It("prefers the agreeing group", func() {
			Expect(best.Value).To(Equal("641234567890"))
		})
	})

	When("two groups tie on final confidence", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("222222222222", EAN13, "beta", "high_contrast", 0.8),
				candidate("111111111111", EAN13, "alpha", "standard", 0.8),
			}
		})

		It("breaks the tie by earlier variant priority", func() {
			Expect(best.Value).To(Equal("111111111111"))
		})
	})

	When("tied groups share a variant", func() {
		BeforeEach(func() {
			out.Candidates = []Candidate{
				candidate("222222222222", EAN13, "beta", "standard", 0.8),
				candidate("111111111111", EAN13, "alpha", "standard", 0.8),
			}
		})

		It("breaks the tie by engine registration order", func() {
			Expect(best.Value).To(Equal("111111111111"))
		})
	})

	When("ML re-scoring is enabled with multiple groups", func() {
		BeforeEach(func() {
			enableML = true
			ranker = &fakeRanker{scores: map[string]float64{
				"111111111111": 0.3,
				"222222222222": 0.95,
			}}
			out.Candidates = []Candidate{
				candidate("111111111111", EAN13, "alpha", "standard", 0.9),
				candidate("222222222222", EAN13, "beta", "standard", 0.5),
			}
		})

		It("lets the prediction replace the native score", func() {
			Expect(best.Value).To(Equal("222222222222"))
			Expect(mlUsed).To(BeTrue())
		})
	})

	When("ML re-scoring is enabled with a single group", func() {
		BeforeEach(func() {
			enableML = true
			ranker = &fakeRanker{scores: map[string]float64{"111111111111": 0.1}}
			out.Candidates = []Candidate{
				candidate("111111111111", EAN13, "alpha", "standard", 0.9),
			}
		})

		It("skips the ranker", func() {
			Expect(ranker.calls).To(BeZero())
			Expect(mlUsed).To(BeFalse())
			Expect(best.FinalConfidence).To(BeNumerically("==", 0.9))
		})
	})

	When("the ranker fails", func() {
		BeforeEach(func() {
			enableML = true
			ranker = &fakeRanker{err: errors.New("model unavailable")}
			out.Candidates = []Candidate{
				candidate("111111111111", EAN13, "alpha", "standard", 0.9),
				candidate("222222222222", EAN13, "beta", "standard", 0.5),
			}
		})

		It("falls back to native scoring", func() {
			Expect(mlUsed).To(BeFalse())
			Expect(best.Value).To(Equal("111111111111"))
		})
	})

	When("the ranker returns an out-of-range score", func() {
		BeforeEach(func() {
			enableML = true
			ranker = &fakeRanker{scores: map[string]float64{
				"111111111111": 3.7,
				"222222222222": -1.2,
			}}
			out.Candidates = []Candidate{
				candidate("111111111111", EAN13, "alpha", "standard", 0.9),
				candidate("222222222222", EAN13, "beta", "standard", 0.5),
			}
		})

		It("clamps the final confidence to [0,1]", func() {
			Expect(best.FinalConfidence).To(BeNumerically("<=", 1.0))
			Expect(best.FinalConfidence).To(BeNumerically(">=", 0.0))
		})
	})
})
