package fulltext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/theme-engine/internal/logging"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// --- mock tier ---

type mockTier struct {
	source     types.FullTextSource
	applicable bool
	text       string
	err        error
	calls      int
}

func (m *mockTier) Source() types.FullTextSource       { return m.source }
func (m *mockTier) Applicable(doc *types.Document) bool { return m.applicable }
func (m *mockTier) Fetch(ctx context.Context, doc *types.Document) (string, error) {
	m.calls++
	return m.text, m.err
}

// --- mock store ---

type mockStore struct {
	mu       sync.Mutex
	cached   map[string]string
	fetching map[string]time.Time
	fetched  []string
	failed   map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{
		cached:   make(map[string]string),
		fetching: make(map[string]time.Time),
		failed:   make(map[string]string),
	}
}

func (s *mockStore) CachedFullText(ctx context.Context, docID string) (string, types.FullTextSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached[docID], types.TierPMC, nil
}

func (s *mockStore) MarkFetching(ctx context.Context, docID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetching[docID] = at
	return nil
}

func (s *mockStore) MarkFetched(ctx context.Context, doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, doc.ID)
	s.cached[doc.ID] = doc.FullText
	return nil
}

func (s *mockStore) MarkFailed(ctx context.Context, docID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[docID] = reason
	return nil
}

func (s *mockStore) ReconcileStuck(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.fetching {
		if at.Before(cutoff) {
			delete(s.fetching, id)
			s.failed[id] = "stuck fetch reconciled"
			n++
		}
	}
	return n, nil
}

// longText is comfortably above the default minimum length.
var longText = strings.Repeat("Full text of the study. ", 50)

func testWaterfall(t *testing.T, store DocumentStore, tiers ...Tier) *Waterfall {
	t.Helper()
	return NewWaterfall(types.FullTextConfig{MinTextLength: 100}, store, logging.Discard(), tiers...)
}

// --- tier order ---

func TestCachedDocumentSkipsNetworkTiers(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: longText}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1", FullText: longText, FullTextStatus: types.FullTextSuccess}
	res, err := w.Fetch(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Status != StatusCached {
		t.Errorf("Status = %q, want cached", res.Status)
	}
	if pmc.calls != 0 || scrape.calls != 0 {
		t.Errorf("network tiers called %d/%d times for a cached document, want 0/0",
			pmc.calls, scrape.calls)
	}
}

func TestTierFailureFallsThrough(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, err: errors.New("HTTP 500")}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1"}
	res, err := w.Fetch(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Status != StatusFetched || res.Source != types.TierHTMLScrape {
		t.Errorf("result = %+v, want fetched via html_scrape", res)
	}
	if pmc.calls != 1 || scrape.calls != 1 {
		t.Errorf("calls = %d/%d, want both tiers tried in order", pmc.calls, scrape.calls)
	}
	if doc.FullTextStatus != types.FullTextSuccess || doc.FullTextSource != types.TierHTMLScrape {
		t.Errorf("doc enrichment = %s/%s", doc.FullTextStatus, doc.FullTextSource)
	}
	if doc.WordCount == 0 || doc.FetchedAt.IsZero() {
		t.Error("word count and fetch time must be recorded")
	}
}

func TestSuccessShortCircuitsLaterTiers(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: longText}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1"}
	if _, err := w.Fetch(context.Background(), &doc); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if scrape.calls != 0 {
		t.Errorf("later tier called %d times after earlier success, want 0", scrape.calls)
	}
}

func TestInapplicableTiersSkipped(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: false, text: longText}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1"}
	res, _ := w.Fetch(context.Background(), &doc)
	if pmc.calls != 0 {
		t.Errorf("inapplicable tier called %d times", pmc.calls)
	}
	if res.Source != types.TierHTMLScrape {
		t.Errorf("Source = %q", res.Source)
	}
}

// --- total fallback ---

func TestAllTiersInapplicableReturnsUnavailable(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: false}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: false}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1", Abstract: "the abstract survives"}
	res, err := w.Fetch(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if res.Status != StatusUnavailable {
		t.Errorf("Status = %q, want unavailable", res.Status)
	}
	if doc.FullTextStatus != types.FullTextFailed {
		t.Errorf("FullTextStatus = %q, want failed", doc.FullTextStatus)
	}
	if doc.Abstract == "" {
		t.Error("abstract must survive a failed fetch")
	}
}

func TestAllTiersFailingRecordsEveryReason(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, err: errors.New("no PMC record")}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, err: errors.New("HTTP 403")}
	store := newMockStore()
	w := testWaterfall(t, store, pmc, scrape)

	doc := types.Document{ID: "d1"}
	res, err := w.Fetch(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if !strings.Contains(res.Reason, "no PMC record") || !strings.Contains(res.Reason, "HTTP 403") {
		t.Errorf("Reason = %q, want both tier failures recorded", res.Reason)
	}
	if store.failed["d1"] == "" {
		t.Error("failure must be persisted")
	}
}

func TestShortTextFallsThrough(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: "too short"}
	scrape := &mockTier{source: types.TierHTMLScrape, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc, scrape)

	doc := types.Document{ID: "d1"}
	res, _ := w.Fetch(context.Background(), &doc)
	if res.Source != types.TierHTMLScrape {
		t.Errorf("fragment must not count as full text, got source %q", res.Source)
	}
}

// --- idempotence / refresh ---

func TestStoreCacheHitSkipsTiers(t *testing.T) {
	store := newMockStore()
	store.cached["d1"] = longText
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: longText}
	w := testWaterfall(t, store, pmc)

	doc := types.Document{ID: "d1"}
	res, _ := w.Fetch(context.Background(), &doc)
	if res.Status != StatusCached {
		t.Errorf("Status = %q, want cached from store", res.Status)
	}
	if pmc.calls != 0 {
		t.Errorf("network tier called %d times despite store cache", pmc.calls)
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc)

	doc := types.Document{ID: "d1", FullText: longText, FullTextStatus: types.FullTextSuccess}
	res, err := w.Refresh(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Status != StatusFetched || pmc.calls != 1 {
		t.Errorf("Refresh must refetch: status %q, calls %d", res.Status, pmc.calls)
	}
}

// --- reconciliation ---

func TestReconcileStuckFlipsOldFetches(t *testing.T) {
	store := newMockStore()
	store.fetching["old"] = time.Now().Add(-time.Hour)
	store.fetching["new"] = time.Now()

	w := NewWaterfall(types.FullTextConfig{StuckFetchAge: 10 * time.Minute},
		store, logging.Discard())

	// NewWaterfall runs the sweep at construction.
	if _, stuck := store.fetching["old"]; stuck {
		t.Error("old fetching entry not reconciled at construction")
	}
	if _, ok := store.fetching["new"]; !ok {
		t.Error("recent fetching entry must survive reconciliation")
	}
	if store.failed["old"] == "" {
		t.Error("reconciled document must be marked failed")
	}

	n, err := w.ReconcileStuck(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStuck: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep reconciled %d, want 0", n)
	}
}

// --- batch ---

func TestFetchBatchAggregatesByIdentity(t *testing.T) {
	pmc := &mockTier{source: types.TierPMC, applicable: true, text: longText}
	w := testWaterfall(t, nil, pmc)

	docs := []types.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	var out strings.Builder
	res, err := w.FetchBatch(context.Background(), docs, nil, &out)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}

	if res.Fetched != 3 || res.Total() != 3 {
		t.Errorf("result = %+v, want 3 fetched", res)
	}
	for i := range docs {
		if docs[i].FullTextStatus != types.FullTextSuccess {
			t.Errorf("doc %s status = %q", docs[i].ID, docs[i].FullTextStatus)
		}
	}
	if !strings.Contains(out.String(), "Batch summary: 0 cached, 3 fetched, 0 unavailable") {
		t.Errorf("summary line missing from output:\n%s", out.String())
	}
}

// blockingTier holds every fetch until its context is cancelled, and
// signals once the first fetch has started.
type blockingTier struct {
	source  types.FullTextSource
	started chan struct{}
	once    sync.Once
}

func (b *blockingTier) Source() types.FullTextSource        { return b.source }
func (b *blockingTier) Applicable(doc *types.Document) bool { return true }
func (b *blockingTier) Fetch(ctx context.Context, doc *types.Document) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", ctx.Err()
}

func TestFetchBatchCancellationCountsSkipped(t *testing.T) {
	tier := &blockingTier{source: types.TierPMC, started: make(chan struct{})}
	w := NewWaterfall(types.FullTextConfig{MinTextLength: 100, FetchConcurrency: 1},
		nil, logging.Discard(), tier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	docs := []types.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	type batchOut struct {
		res BatchResult
		err error
	}
	var out strings.Builder
	done := make(chan batchOut, 1)
	go func() {
		res, err := w.FetchBatch(ctx, docs, nil, &out)
		done <- batchOut{res, err}
	}()

	<-tier.started
	cancel()
	got := <-done

	if got.err == nil {
		t.Fatal("cancelled batch must surface the context error")
	}
	if got.res.Total() != len(docs) {
		t.Errorf("total = %d, want %d: every input document lands in a bucket", got.res.Total(), len(docs))
	}
	if got.res.Skipped == 0 {
		t.Error("documents never claimed before cancellation must count as skipped")
	}
	if !strings.Contains(out.String(), "skipped") {
		t.Errorf("skipped documents missing from batch output:\n%s", out.String())
	}
}

// --- stripReferenceTail ---

func TestStripReferenceTail(t *testing.T) {
	body := strings.Repeat("Findings about references in prose. ", 40)
	tail := "\nreferences\n[1] Smith, J. et al.\n[2] Jones, K."
	got := stripReferenceTail(body + tail)
	if strings.Contains(got, "[1] Smith") {
		t.Error("reference tail not stripped")
	}
	if !strings.Contains(got, "Findings about references in prose.") {
		t.Error("body text lost")
	}
}

func TestStripReferenceTailIgnoresEarlyMention(t *testing.T) {
	text := "\nreferences\nare discussed early. " + strings.Repeat("Body text continues here. ", 40)
	if got := stripReferenceTail(text); got != text {
		t.Error("an early heading must not truncate the document")
	}
}
