// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pdiddy/theme-engine/internal/pool"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// BatchResult summarizes a batch fetch run. Every input document lands in
// exactly one bucket, so Total always equals the input count.
type BatchResult struct {
	Cached      int
	Fetched     int
	Unavailable int
	// Skipped counts documents whose slot was never claimed before
	// cancellation; their waterfall did not run at all.
	Skipped int
	Results []FetchResult
}

// Total returns the number of input documents.
func (r BatchResult) Total() int {
	return r.Cached + r.Fetched + r.Unavailable + r.Skipped
}

// HasFailures reports whether any document ended without full text.
func (r BatchResult) HasFailures() bool {
	return r.Unavailable > 0
}

// FetchBatch runs the waterfall over many documents with bounded
// concurrency, printing per-document status to w and emitting one progress
// tick per settled document. Results are index-aligned with docs; tier
// order within each document stays strict while documents complete in any
// order (R5.1, R5.2).
func (w *Waterfall) FetchBatch(ctx context.Context, docs []types.Document, reporter *progress.Reporter, out io.Writer) (BatchResult, error) {
	results := make([]FetchResult, len(docs))
	errs := make([]error, len(docs))
	var done int64

	runErr := pool.Run(ctx, len(docs), w.cfg.FetchConcurrency, func(i int) {
		res, err := w.Fetch(ctx, &docs[i])
		results[i], errs[i] = res, err

		n := int(atomic.AddInt64(&done, 1))
		if reporter != nil {
			reporter.Emit(progress.StageFamiliarization, n*100/len(docs), types.LiveStats{
				SourcesAnalyzed:  n,
				CurrentOperation: "fetching: " + docs[i].Title,
			})
		}
	})

	var result BatchResult
	result.Results = results
	for i := range docs {
		if err := errs[i]; err != nil {
			fmt.Fprintf(out, "failed  %s: %v\n", docs[i].ID, err)
			result.Unavailable++
			continue
		}
		switch results[i].Status {
		case StatusCached:
			fmt.Fprintf(out, "cached  %s\n", docs[i].ID)
			result.Cached++
		case StatusFetched:
			fmt.Fprintf(out, "fetched %s (%s, %d words)\n", docs[i].ID, results[i].Source, docs[i].WordCount)
			result.Fetched++
		case StatusUnavailable:
			fmt.Fprintf(out, "missing %s: %s\n", docs[i].ID, results[i].Reason)
			result.Unavailable++
		default:
			// zero-valued result: cancellation hit before this slot ran
			fmt.Fprintf(out, "skipped %s: cancelled before fetch\n", docs[i].ID)
			result.Skipped++
		}
	}

	fmt.Fprintf(out, "\nBatch summary: %d cached, %d fetched, %d unavailable, %d skipped (total: %d)\n",
		result.Cached, result.Fetched, result.Unavailable, result.Skipped, result.Total())
	return result, runErr
}
