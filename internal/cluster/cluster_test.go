package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pdiddy/theme-engine/internal/logging"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// --- mock labeler ---

type mockLabeler struct {
	calls int
	fail  bool
}

func (m *mockLabeler) Label(ctx context.Context, codes []types.Code) (ThemeLabel, error) {
	m.calls++
	if m.fail {
		return ThemeLabel{}, errors.New("labeler down")
	}
	return ThemeLabel{
		Label:       fmt.Sprintf("Theme %d", m.calls),
		Description: "a labeled cluster",
		Keywords:    []string{"alpha", "beta"},
		Confidence:  0.9,
	}, nil
}

// embedded builds a code with a given embedding.
func embedded(id, sourceID string, emb []float32) types.Code {
	return types.Code{ID: id, SourceDocumentID: sourceID, Text: "code " + id, Embedding: emb}
}

// axisCodes returns count codes tightly grouped around unit axis dim/axis.
func axisCodes(prefix, sourceID string, dim, axis, count int) []types.Code {
	var out []types.Code
	for i := 0; i < count; i++ {
		emb := make([]float32, dim)
		emb[axis] = 1.0
		// Small per-code offset keeps members distinct without leaving the axis.
		emb[(axis+1)%dim] = float32(i) * 0.01
		out = append(out, embedded(fmt.Sprintf("%s-%d", prefix, i), sourceID, emb))
	}
	return out
}

// --- DetectDimension ---

func TestDetectDimension(t *testing.T) {
	codes := []types.Code{
		{ID: "a"}, // no embedding: skipped
		embedded("b", "s1", make([]float32, 384)),
		embedded("c", "s1", make([]float32, 384)),
	}
	dim, err := DetectDimension(codes)
	if err != nil {
		t.Fatalf("DetectDimension: %v", err)
	}
	if dim != 384 {
		t.Errorf("dim = %d, want 384", dim)
	}
}

func TestDetectDimensionMismatch(t *testing.T) {
	codes := []types.Code{
		embedded("a", "s1", make([]float32, 384)),
		embedded("b", "s1", make([]float32, 384)),
		embedded("c", "s1", make([]float32, 1536)),
	}
	_, err := DetectDimension(codes)

	var mismatch *DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want DimensionMismatchError", err)
	}
	if mismatch.Detected != 384 || mismatch.Actual != 1536 {
		t.Errorf("mismatch = %+v, want detected 384 actual 1536", mismatch)
	}
	msg := err.Error()
	if !strings.Contains(msg, "384") || !strings.Contains(msg, "1536") {
		t.Errorf("error %q must name both dimensions", msg)
	}
}

func TestDetectDimensionNoEmbeddings(t *testing.T) {
	_, err := DetectDimension([]types.Code{{ID: "a"}, {ID: "b"}})
	if !errors.Is(err, ErrNoEmbeddings) {
		t.Errorf("err = %v, want ErrNoEmbeddings", err)
	}
}

// --- Cluster ---

func testPipeline(labeler Labeler) *Pipeline {
	return NewPipeline(types.ClusterConfig{}, labeler, logging.Discard())
}

func TestClusterSeparatesDistinctGroups(t *testing.T) {
	const dim = 8
	var codes []types.Code
	codes = append(codes, axisCodes("a", "src-a", dim, 0, 5)...)
	codes = append(codes, axisCodes("b", "src-b", dim, 3, 5)...)
	codes = append(codes, axisCodes("c", "src-c", dim, 6, 5)...)

	lab := &mockLabeler{}
	res, err := testPipeline(lab).Cluster(context.Background(), codes, nil, 3)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Themes) != 3 {
		t.Fatalf("got %d themes, want 3", len(res.Themes))
	}
	for _, theme := range res.Themes {
		if len(theme.Sources) != 1 {
			t.Errorf("theme %q has sources from %d sources, want 1 (clusters follow the axes)",
				theme.Label, len(theme.Sources))
		}
		if theme.Sources[0].Influence != 1.0 {
			t.Errorf("single-source cluster influence = %f, want 1.0", theme.Sources[0].Influence)
		}
	}
}

func TestClusterDiversityPostPassMergesNearDuplicates(t *testing.T) {
	const dim = 8
	// All codes on one axis: any k > 1 must collapse to a single theme.
	codes := axisCodes("a", "src-a", dim, 0, 12)

	res, err := testPipeline(&mockLabeler{}).Cluster(context.Background(), codes, nil, 6)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Themes) != 1 {
		t.Errorf("got %d themes, want 1 after the diversity merge (target is a target)", len(res.Themes))
	}
}

func TestClusterLabelerFallback(t *testing.T) {
	const dim = 4
	codes := axisCodes("a", "src-a", dim, 0, 4)
	for i := range codes {
		codes[i].Text = "sleep deprivation impairs memory consolidation"
	}

	res, err := testPipeline(&mockLabeler{fail: true}).Cluster(context.Background(), codes, nil, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Themes) != 1 {
		t.Fatalf("got %d themes, want labeling failure to degrade, not drop", len(res.Themes))
	}
	if res.LabelingFallbacks != 1 {
		t.Errorf("LabelingFallbacks = %d, want 1", res.LabelingFallbacks)
	}
	if res.Themes[0].Label == "" {
		t.Error("fallback theme must carry a keyword label")
	}
}

func TestClusterNilLabelerUsesFallback(t *testing.T) {
	const dim = 4
	codes := axisCodes("a", "src-a", dim, 0, 4)
	for i := range codes {
		codes[i].Text = "sleep deprivation impairs memory consolidation"
	}

	res, err := testPipeline(nil).Cluster(context.Background(), codes, nil, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Themes) != 1 {
		t.Fatalf("got %d themes, want 1 with keyword labels", len(res.Themes))
	}
	if res.LabelingFallbacks != 1 {
		t.Errorf("LabelingFallbacks = %d, want 1", res.LabelingFallbacks)
	}
	if res.Themes[0].Label == "" {
		t.Error("fallback theme must carry a keyword label")
	}
}

func TestClusterMismatchedBatchFails(t *testing.T) {
	codes := axisCodes("a", "src-a", 384, 0, 4)
	codes = append(codes, embedded("x", "src-a", make([]float32, 1536)))

	_, err := testPipeline(&mockLabeler{}).Cluster(context.Background(), codes, nil, 2)
	var mismatch *DimensionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want DimensionMismatchError", err)
	}
}

func TestClusterSourceMetadataFlowsThrough(t *testing.T) {
	const dim = 4
	codes := axisCodes("a", "src-a", dim, 0, 3)
	sources := map[string]types.SourceDescriptor{
		"src-a": {
			ID: "src-a", Type: types.SourceVideo, Title: "Video A",
			Keywords: []string{"alpha"},
			Metadata: types.SourceMetadata{DOI: "10.1/xyz", Year: 2024},
		},
	}

	res, err := testPipeline(&mockLabeler{}).Cluster(context.Background(), codes, sources, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	src := res.Themes[0].Sources[0]
	if src.SourceType != types.SourceVideo || src.SourceTitle != "Video A" {
		t.Errorf("source = %+v, want video metadata from the descriptor", src)
	}
	if src.DOI != "10.1/xyz" || src.Year != 2024 {
		t.Errorf("bibliographic fields lost: %+v", src)
	}
	if src.KeywordMatches != 1 {
		t.Errorf("KeywordMatches = %d, want 1 (alpha overlaps)", src.KeywordMatches)
	}
	if res.Themes[0].Provenance.VideoCount != 1 {
		t.Errorf("provenance = %+v, want one video source", res.Themes[0].Provenance)
	}
}

func TestClusterDeterministicAcrossRuns(t *testing.T) {
	const dim = 8
	var codes []types.Code
	codes = append(codes, axisCodes("a", "src-a", dim, 0, 6)...)
	codes = append(codes, axisCodes("b", "src-b", dim, 4, 6)...)

	first, err := testPipeline(&mockLabeler{}).Cluster(context.Background(), codes, nil, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	second, err := testPipeline(&mockLabeler{}).Cluster(context.Background(), codes, nil, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(first.Themes) != len(second.Themes) {
		t.Fatalf("runs produced %d and %d themes", len(first.Themes), len(second.Themes))
	}
	for i := range first.Themes {
		if first.Themes[i].ID != second.Themes[i].ID {
			t.Errorf("theme %d differs across identical seeded runs", i)
		}
	}
}

// --- fallbackLabel ---

func TestFallbackLabelUsesFrequentWords(t *testing.T) {
	codes := []types.Code{
		{Text: "sleep quality declined under chronic stress"},
		{Text: "stress hormones disrupt sleep architecture"},
		{Text: "poor sleep amplifies stress reactivity"},
	}
	lbl := fallbackLabel(codes)
	if !strings.Contains(lbl.Label, "sleep") || !strings.Contains(lbl.Label, "stress") {
		t.Errorf("fallback label %q should surface the dominant words", lbl.Label)
	}
	if len(lbl.Keywords) == 0 {
		t.Error("fallback label must carry keywords")
	}
}

func TestFallbackLabelEmptyCodes(t *testing.T) {
	lbl := fallbackLabel([]types.Code{{Text: ""}})
	if lbl.Label == "" {
		t.Error("fallback label must never be empty")
	}
}
