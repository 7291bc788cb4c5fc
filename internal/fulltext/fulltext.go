// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext resolves a document's full text through a strict tier
// waterfall: cache, structured repository, publisher HTML, open-access PDF.
// Tier failures fall through; the pipeline never blocks on full text.
// Implements: prd002-fulltext (R1-R5); docs/ARCHITECTURE § Acquisition.
package fulltext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// FetchError reports one tier's failure. Tier-level, non-fatal: the
// waterfall logs it and falls through to the next tier (R3.1).
type FetchError struct {
	Tier   types.FullTextSource
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s tier: %s: %v", e.Tier, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s tier: %s", e.Tier, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrUnavailable means every tier failed or was inapplicable. The document
// proceeds on its abstract (R3.3).
var ErrUnavailable = errors.New("full text unavailable from all tiers")

// ResultStatus classifies a fetch outcome.
type ResultStatus string

const (
	// StatusCached means the text was already present; no network tier ran.
	StatusCached ResultStatus = "cached"
	// StatusFetched means a network tier produced the text.
	StatusFetched ResultStatus = "fetched"
	// StatusUnavailable means every tier failed or was inapplicable.
	StatusUnavailable ResultStatus = "unavailable"
)

// FetchResult is the waterfall's outcome for one document.
type FetchResult struct {
	Status ResultStatus
	Text   string
	Source types.FullTextSource
	// Reason explains an unavailable result: which tiers were tried and why
	// they failed.
	Reason string
}

// Tier is one rung of the waterfall. Tiers run strictly in priority order,
// never in parallel: a tier's success short-circuits the rest (R2.2).
type Tier interface {
	// Source names the tier for diagnostics and the document record.
	Source() types.FullTextSource

	// Applicable reports whether the document carries what the tier needs
	// (an identifier, a URL). Inapplicable tiers are skipped silently.
	Applicable(doc *types.Document) bool

	// Fetch returns cleaned body text or an error.
	Fetch(ctx context.Context, doc *types.Document) (string, error)
}

// DocumentStore persists fetch state. The store also backs the cache tier
// and the stuck-fetch reconciliation sweep.
type DocumentStore interface {
	// CachedFullText returns previously fetched text for the document, or
	// "" when none is stored.
	CachedFullText(ctx context.Context, docID string) (string, types.FullTextSource, error)

	// MarkFetching records that a fetch attempt started at the given time.
	MarkFetching(ctx context.Context, docID string, at time.Time) error

	// MarkFetched persists the document's full-text fields after success.
	MarkFetched(ctx context.Context, doc *types.Document) error

	// MarkFailed records a terminal fetch failure.
	MarkFailed(ctx context.Context, docID, reason string) error

	// ReconcileStuck flips documents stuck in the fetching state since
	// before the cutoff to failed, returning how many were flipped.
	ReconcileStuck(ctx context.Context, cutoff time.Time) (int, error)
}

// Waterfall coordinates the tier chain for one run. Construct with the
// tiers in priority order; the cache tier is built in. Immutable after
// construction.
type Waterfall struct {
	cfg   types.FullTextConfig
	tiers []Tier
	store DocumentStore
	log   *slog.Logger
	now   func() time.Time
}

// NewWaterfall builds a waterfall over the given network tiers. A nil
// store disables persistence and the store-backed cache; the in-memory
// cache tier (doc.FullText) still applies. On construction it runs one
// reconciliation sweep so documents stuck in fetching from a crashed run
// cannot stay stuck (R4.4).
func NewWaterfall(cfg types.FullTextConfig, store DocumentStore, log *slog.Logger, tiers ...Tier) *Waterfall {
	if cfg.TierTimeout == 0 {
		cfg.TierTimeout = 30 * time.Second
	}
	if cfg.MinTextLength == 0 {
		cfg.MinTextLength = 500
	}
	if cfg.StuckFetchAge == 0 {
		cfg.StuckFetchAge = 10 * time.Minute
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 4
	}

	w := &Waterfall{cfg: cfg, tiers: tiers, store: store, log: log, now: time.Now}
	if store != nil {
		if n, err := w.ReconcileStuck(context.Background()); err != nil {
			log.Warn("startup reconciliation failed", "error", err)
		} else if n > 0 {
			log.Info("reconciled stuck fetches", "count", n)
		}
	}
	return w
}

// Fetch resolves full text for one document. Idempotent: a document whose
// status is already success returns its cached text without any network
// call (R4.1). On success the document's enrichment fields are set and
// persisted; on total failure the document keeps its abstract and the
// result explains every tier's failure (R3.3).
func (w *Waterfall) Fetch(ctx context.Context, doc *types.Document) (FetchResult, error) {
	if res, ok := w.cached(ctx, doc); ok {
		return res, nil
	}
	return w.fetch(ctx, doc)
}

// Refresh re-runs the network tiers even for a document already marked
// success. Explicit refresh is the only path that refetches (R4.2).
func (w *Waterfall) Refresh(ctx context.Context, doc *types.Document) (FetchResult, error) {
	return w.fetch(ctx, doc)
}

// cached checks the in-memory fields and then the store. Text below the
// minimum length does not count as full text (R2.1).
func (w *Waterfall) cached(ctx context.Context, doc *types.Document) (FetchResult, bool) {
	if doc.FullTextStatus == types.FullTextSuccess && len(doc.FullText) >= w.cfg.MinTextLength {
		return FetchResult{Status: StatusCached, Text: doc.FullText, Source: types.TierCache}, true
	}

	if w.store != nil {
		text, source, err := w.store.CachedFullText(ctx, doc.ID)
		if err != nil {
			w.log.Warn("cache lookup failed", "doc_id", doc.ID, "error", err)
		} else if len(text) >= w.cfg.MinTextLength {
			w.enrich(doc, text, source)
			return FetchResult{Status: StatusCached, Text: text, Source: types.TierCache}, true
		}
	}
	return FetchResult{}, false
}

func (w *Waterfall) fetch(ctx context.Context, doc *types.Document) (FetchResult, error) {
	doc.FullTextStatus = types.FullTextFetching
	if w.store != nil {
		if err := w.store.MarkFetching(ctx, doc.ID, w.now()); err != nil {
			w.log.Warn("marking fetching failed", "doc_id", doc.ID, "error", err)
		}
	}

	var reasons []string
	for _, tier := range w.tiers {
		if !tier.Applicable(doc) {
			continue
		}

		tierCtx, cancel := context.WithTimeout(ctx, w.cfg.TierTimeout)
		text, err := tier.Fetch(tierCtx, doc)
		cancel()

		if err != nil {
			fe := &FetchError{Tier: tier.Source(), Reason: "fetch failed", Err: err}
			w.log.Warn("tier failed, falling through",
				"doc_id", doc.ID, "tier", string(tier.Source()), "error", err)
			reasons = append(reasons, fe.Error())
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(text) < w.cfg.MinTextLength {
			w.log.Warn("tier returned fragment, falling through",
				"doc_id", doc.ID, "tier", string(tier.Source()), "length", len(text))
			reasons = append(reasons, fmt.Sprintf("%s tier: text too short (%d chars)", tier.Source(), len(text)))
			continue
		}

		w.enrich(doc, text, tier.Source())
		if w.store != nil {
			if err := w.store.MarkFetched(ctx, doc); err != nil {
				w.log.Warn("persisting full text failed", "doc_id", doc.ID, "error", err)
			}
		}
		return FetchResult{Status: StatusFetched, Text: text, Source: tier.Source()}, nil
	}

	reason := "no applicable tiers"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}
	doc.FullTextStatus = types.FullTextFailed
	doc.FetchedAt = w.now()
	if w.store != nil {
		if err := w.store.MarkFailed(ctx, doc.ID, reason); err != nil {
			w.log.Warn("marking failed failed", "doc_id", doc.ID, "error", err)
		}
	}
	return FetchResult{Status: StatusUnavailable, Reason: reason}, nil
}

// enrich sets the document's full-text fields: exactly once per attempt,
// with word count and tier recorded for downstream weighting (R4.5).
func (w *Waterfall) enrich(doc *types.Document, text string, source types.FullTextSource) {
	doc.FullText = text
	doc.FullTextStatus = types.FullTextSuccess
	doc.FullTextSource = source
	doc.WordCount = len(strings.Fields(text))
	doc.FetchedAt = w.now()
}

// ReconcileStuck flips documents left in fetching longer than the
// configured age to failed. Timeout ownership lives here, not with
// callers (R4.3).
func (w *Waterfall) ReconcileStuck(ctx context.Context) (int, error) {
	if w.store == nil {
		return 0, nil
	}
	cutoff := w.now().Add(-w.cfg.StuckFetchAge)
	n, err := w.store.ReconcileStuck(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reconciling stuck fetches: %w", err)
	}
	return n, nil
}
