package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ohta-d/barcode-scan-api/internal/decode"
	"github.com/ohta-d/barcode-scan-api/internal/provider"
)

// Service glues the scan pipeline to the decode store and exposes the
// operations the HTTP layer serves.
type Service struct {
	pipeline   *Pipeline
	store      Store
	timeSource TimeSource
}

// NewService creates a new Service with the default time source. When a
// store is supplied, the pipeline short-circuits repeat scans through it.
func NewService(pipeline *Pipeline, store Store) *Service {
	return NewServiceWithDeps(pipeline, store, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for
// testing.
func NewServiceWithDeps(pipeline *Pipeline, store Store, timeSource TimeSource) *Service {
	s := &Service{
		pipeline:   pipeline,
		store:      store,
		timeSource: timeSource,
	}
	if store != nil {
		pipeline.WithLookup(s.lookupStored)
	}
	return s
}

func (s *Service) lookupStored(barcode string) (*StoredTicket, bool) {
	ticket, err := s.store.Get(barcode)
	if err != nil {
		return nil, false
	}
	return ticket, true
}

// Scan runs the pipeline over one image and persists a successful decode.
// Persistence is best-effort: a store failure is logged, never surfaced.
func (s *Service) Scan(ctx context.Context, req ScanRequest) Result {
	result := s.pipeline.Scan(ctx, req)
	s.persist(result)
	return result
}

// ScanBatch runs the pipeline over a batch and persists each successful
// decode.
func (s *Service) ScanBatch(ctx context.Context, reqs []ScanRequest) []Result {
	results := s.pipeline.ScanAll(ctx, reqs)
	for _, result := range results {
		s.persist(result)
	}
	return results
}

func (s *Service) persist(result Result) {
	if s.store == nil || !result.Success {
		return
	}
	ticket := &StoredTicket{
		BarcodeData:  result.BarcodeData,
		Provider:     result.Provider,
		Format:       result.Format,
		Confidence:   result.Confidence,
		ParsedFields: result.ParsedData,
		CreatedAt:    s.timeSource.Now(),
	}
	if result.ChecksumValid != nil {
		ticket.ChecksumValid = *result.ChecksumValid
	}
	if err := s.store.Upsert(ticket); err != nil {
		slog.Warn("persisting decode failed", "barcode", result.BarcodeData, "error", err)
	}
}

// Validate re-validates a barcode value against a provider grammar without
// re-decoding an image. format must be a supported symbology; providerHint
// may be empty to search all grammars.
func (s *Service) Validate(format, barcode, providerHint string) (Result, error) {
	if barcode == "" {
		return Result{}, fmt.Errorf("barcode_data is required")
	}
	symbology, ok := decode.ParseSymbology(format)
	if !ok {
		return Result{}, fmt.Errorf("unsupported format: %q", format)
	}

	hint, _ := provider.ParseID(providerHint)
	match := provider.Resolve(barcode, hint)

	result := Result{
		Success:     true,
		BarcodeData: barcode,
		Format:      string(symbology),
		ProcessingInfo: ProcessingInfo{
			PreprocessingVariants: []string{},
			EnginesTried:          []string{},
		},
	}
	s.pipeline.applyProviderPolicy(&result, match)
	return result, nil
}

// GetTicket retrieves a stored decode by barcode value.
func (s *Service) GetTicket(barcode string) (*StoredTicket, error) {
	if s.store == nil {
		return nil, ErrTicketNotFound
	}
	ticket, err := s.store.Get(barcode)
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return ticket, nil
}

// QueryTickets returns stored decodes filtered by provider and time range.
func (s *Service) QueryTickets(providerID string, from, to time.Time) ([]*StoredTicket, error) {
	if s.store == nil {
		return []*StoredTicket{}, nil
	}
	tickets, err := s.store.Query(providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	return tickets, nil
}
