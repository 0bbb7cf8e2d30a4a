package ticket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanAll runs the single-image pipeline over a batch with bounded
// concurrency. Results come back in input order; one item's failure never
// cancels its siblings. Once the batch deadline passes, items that have not
// started return TIMEOUT while in-flight items are allowed to finish or hit
// their own per-item timeout.
func (p *Pipeline) ScanAll(ctx context.Context, reqs []ScanRequest) []Result {
	results := make([]Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	batchID := uuid.NewString()
	concurrency := p.cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	// The batch deadline gates admission only; items already running keep
	// the parent context so completed work is never thrown away.
	admission := ctx
	var cancel context.CancelFunc
	if p.cfg.BatchTimeout > 0 {
		admission, cancel = context.WithTimeout(ctx, p.cfg.BatchTimeout)
		defer cancel()
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	start := time.Now()

	for i, req := range reqs {
		requestID := uuid.NewString()
		select {
		case sem <- struct{}{}:
		case <-admission.Done():
			slog.Warn("batch item not admitted", "batch_id", batchID, "request_id", requestID, "index", i)
			results[i] = batchTimeoutResult()
			continue
		}
		// A closed deadline can race the semaphore in select; re-check so
		// nothing starts after expiry.
		if admission.Err() != nil {
			<-sem
			slog.Warn("batch item not admitted", "batch_id", batchID, "request_id", requestID, "index", i)
			results[i] = batchTimeoutResult()
			continue
		}

		wg.Add(1)
		go func(i int, req ScanRequest, requestID string) {
			defer wg.Done()
			defer func() { <-sem }()
			itemStart := time.Now()
			results[i] = p.Scan(ctx, req)
			slog.Info("batch item complete",
				"batch_id", batchID,
				"request_id", requestID,
				"index", i,
				"success", results[i].Success,
				"elapsed_ms", time.Since(itemStart).Milliseconds(),
			)
		}(i, req, requestID)
	}
	wg.Wait()

	slog.Info("batch scan complete",
		"batch_id", batchID,
		"items", len(reqs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results
}

func batchTimeoutResult() Result {
	return errorResult(CodeTimeout, "batch timed out before item started", ProcessingInfo{
		PreprocessingVariants: []string{},
		EnginesTried:          []string{},
	})
}
