package ticket

import (
	"time"

	"github.com/ohta-d/barcode-scan-api/internal/imaging"
)

// Config carries all pipeline tuning in one explicit value; there is no
// ambient scan state.
type Config struct {
	// VariantTags lists enabled preprocessing transforms in priority order.
	// Empty means imaging.DefaultTags.
	VariantTags []string
	// MaxVariants caps variants generated per request. Zero means no cap.
	MaxVariants int

	// HighConfidence is the native confidence above which a corroborated
	// candidate stops the search early.
	HighConfidence float64
	// EngineTimeout bounds each engine invocation.
	EngineTimeout time.Duration
	// ItemTimeout bounds one whole single-image scan.
	ItemTimeout time.Duration

	// BatchConcurrency bounds how many single-image pipelines run at once.
	BatchConcurrency int
	// BatchTimeout bounds total batch wall time; unstarted items return
	// TIMEOUT once it expires.
	BatchTimeout time.Duration

	// Strict omits provider and parsed fields when the checksum does not
	// validate. Lenient mode includes them flagged via checksum_valid.
	Strict bool
	// EnableML turns on ML re-scoring by default; a request can override.
	EnableML bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		VariantTags:      imaging.DefaultTags,
		MaxVariants:      6,
		HighConfidence:   0.9,
		EngineTimeout:    2 * time.Second,
		ItemTimeout:      10 * time.Second,
		BatchConcurrency: 4,
		BatchTimeout:     30 * time.Second,
		Strict:           false,
		EnableML:         false,
	}
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}
