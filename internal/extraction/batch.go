// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pdiddy/theme-engine/internal/pool"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// backoffBase is the base delay for retry backoff. Package-level var so
// tests can shrink it.
var backoffBase = 2 * time.Second

// SourceResult is the settled outcome for one successfully extracted source.
type SourceResult struct {
	Source types.SourceDescriptor
	Codes  []types.Code
	Themes []types.RawTheme
}

// SourceFailure records a source whose extraction failed after retries.
type SourceFailure struct {
	SourceID string
	Type     types.SourceType
	Err      error
}

// BatchStats summarizes a batch run. Cancelled marks a partial result
// produced after context cancellation.
type BatchStats struct {
	Succeeded      int
	Failed         int
	CodesGenerated int
	Elapsed        time.Duration
	Cancelled      bool
}

// BatchResult aggregates per-source outcomes. Results and Failures are
// ordered by the input source order, not completion order.
type BatchResult struct {
	Results  []SourceResult
	Failures []SourceFailure
	Stats    BatchStats
}

// BatchOptions bounds the batch: worker count and per-source retry limit.
type BatchOptions struct {
	MaxConcurrent int
	MaxRetries    int
}

// ExtractBatch runs the backend over every source with bounded concurrency.
// All sources settle (success or recorded failure) before it returns; one
// failed source never aborts the batch. Per R3.2.
func ExtractBatch(ctx context.Context, sources []types.SourceDescriptor, backend Backend, opts BatchOptions, reporter *progress.Reporter, log *slog.Logger) BatchResult {
	start := time.Now()
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	type outcome struct {
		raw     RawExtraction
		err     error
		settled bool
	}
	outcomes := make([]outcome, len(sources))
	var done, codesSoFar atomic.Int64

	runErr := pool.Run(ctx, len(sources), opts.MaxConcurrent, func(i int) {
		src := sources[i]
		raw, err := callWithRetry(ctx, backend, src, opts.MaxRetries, log)
		outcomes[i] = outcome{raw: raw, err: err, settled: true}
		codesSoFar.Add(int64(len(raw.Codes)))

		settled := done.Add(1)
		if reporter != nil {
			pct := int(settled * 100 / int64(len(sources)))
			reporter.Emit(progress.StageCoding, pct, types.LiveStats{
				SourcesAnalyzed:  int(settled),
				CodesGenerated:   int(codesSoFar.Load()),
				CurrentOperation: fmt.Sprintf("extracting: %s", src.Title),
			})
		}
	})

	result := BatchResult{}
	for i, src := range sources {
		out := outcomes[i]
		if !out.settled {
			// cancelled before its slot was claimed
			continue
		}
		if out.err != nil {
			log.Warn("source extraction failed", "source_id", src.ID, "type", src.Type, "error", out.err)
			result.Failures = append(result.Failures, SourceFailure{SourceID: src.ID, Type: src.Type, Err: out.err})
			continue
		}
		codes := make([]types.Code, 0, len(out.raw.Codes))
		for _, text := range out.raw.Codes {
			codes = append(codes, types.Code{
				ID:               codeID(src.ID, text),
				SourceDocumentID: src.ID,
				Text:             text,
			})
		}
		result.Results = append(result.Results, SourceResult{Source: src, Codes: codes, Themes: out.raw.Themes})
		result.Stats.CodesGenerated += len(codes)
	}

	result.Stats.Succeeded = len(result.Results)
	result.Stats.Failed = len(result.Failures)
	result.Stats.Elapsed = time.Since(start)
	result.Stats.Cancelled = errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	return result
}

// callWithRetry retries transient extraction failures with exponential
// backoff. Context cancellation is never retried.
func callWithRetry(ctx context.Context, backend Backend, src types.SourceDescriptor, maxRetries int, log *slog.Logger) (RawExtraction, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase * time.Duration(1<<(attempt-1))
			log.Debug("retrying extraction", "source_id", src.ID, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return RawExtraction{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		raw, err := backend.ExtractSource(ctx, src)
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return RawExtraction{}, err
		}
		lastErr = err
	}
	return RawExtraction{}, fmt.Errorf("extraction after %d attempts: %w", maxRetries+1, lastErr)
}

// codeID derives a stable identifier from the source and code text so
// repeated runs over identical input produce identical IDs.
func codeID(sourceID, text string) string {
	sum := sha256.Sum256([]byte("code:" + sourceID + ":" + text))
	return hex.EncodeToString(sum[:])[:12]
}
