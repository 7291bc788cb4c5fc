package fulltext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pdiddy/theme-engine/pkg/types"
)

const articleXML = `<?xml version="1.0"?>
<pmc-articleset><article>
<front><article-meta><title-group><article-title>Skip the front matter</article-title></title-group></article-meta></front>
<body>
<sec><title>Introduction</title>
<p>Sleep loss impairs cognition<xref ref-type="bibr">1</xref> in adults.</p>
<fig><caption><p>Figure caption to skip.</p></caption></fig>
</sec>
<sec><title>Methods</title>
<p>We measured cortisol levels daily.</p>
<table-wrap><table><tr><td>cell to skip</td></tr></table></table-wrap>
</sec>
</body>
<back><ref-list><ref><mixed-citation>Smith J. Reference to skip.</mixed-citation></ref></ref-list></back>
</article></pmc-articleset>`

func TestExtractBodyText(t *testing.T) {
	text, err := extractBodyText([]byte(articleXML))
	if err != nil {
		t.Fatalf("extractBodyText: %v", err)
	}

	for _, want := range []string{"Introduction", "Sleep loss impairs cognition", "We measured cortisol"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, skip := range []string{"front matter", "Figure caption", "cell to skip", "Reference to skip"} {
		if strings.Contains(text, skip) {
			t.Errorf("text contains stripped content %q:\n%s", skip, text)
		}
	}
}

func TestExtractBodyTextEmptyBody(t *testing.T) {
	if _, err := extractBodyText([]byte(`<article><body></body></article>`)); err == nil {
		t.Error("empty body must be an error, not empty success")
	}
}

func TestPMCTierResolvesAndFetches(t *testing.T) {
	var idconvCalls, efetchCalls int

	idconv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idconvCalls++
		if got := r.URL.Query().Get("ids"); got != "10.1000/test" {
			t.Errorf("idconv ids = %q", got)
		}
		w.Write([]byte(`{"records":[{"pmcid":"PMC123456","status":"ok"}]}`))
	}))
	defer idconv.Close()

	efetch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		efetchCalls++
		if got := r.URL.Query().Get("id"); got != "123456" {
			t.Errorf("efetch id = %q, want PMC prefix stripped", got)
		}
		w.Write([]byte(articleXML))
	}))
	defer efetch.Close()

	origIDConv, origEFetch := pmcIDConvBase, pmcEFetchBase
	pmcIDConvBase, pmcEFetchBase = idconv.URL+"/", efetch.URL
	defer func() { pmcIDConvBase, pmcEFetchBase = origIDConv, origEFetch }()

	tier := &PMCTier{Client: idconv.Client(), UserAgent: "theme-engine/test"}
	doc := types.Document{ID: "d1", ExternalIDs: types.ExternalIDs{DOI: "10.1000/test"}}

	text, err := tier.Fetch(context.Background(), &doc)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(text, "Sleep loss impairs cognition") {
		t.Errorf("unexpected text: %s", text)
	}
	if idconvCalls != 1 || efetchCalls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", idconvCalls, efetchCalls)
	}
}

func TestPMCTierSkipsIDConvWithPMCID(t *testing.T) {
	efetch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articleXML))
	}))
	defer efetch.Close()

	orig := pmcEFetchBase
	pmcEFetchBase = efetch.URL
	defer func() { pmcEFetchBase = orig }()

	tier := &PMCTier{Client: efetch.Client(), UserAgent: "theme-engine/test"}
	doc := types.Document{ID: "d1", ExternalIDs: types.ExternalIDs{PMCID: "PMC7"}}
	if _, err := tier.Fetch(context.Background(), &doc); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestPMCTierNoRecord(t *testing.T) {
	idconv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"status":"error"}]}`))
	}))
	defer idconv.Close()

	orig := pmcIDConvBase
	pmcIDConvBase = idconv.URL + "/"
	defer func() { pmcIDConvBase = orig }()

	tier := &PMCTier{Client: idconv.Client()}
	doc := types.Document{ID: "d1", ExternalIDs: types.ExternalIDs{PMID: "999"}}
	if _, err := tier.Fetch(context.Background(), &doc); err == nil {
		t.Error("missing PMC record must be an error")
	}
}

func TestPMCTierApplicability(t *testing.T) {
	tier := &PMCTier{}
	cases := []struct {
		name string
		ids  types.ExternalIDs
		want bool
	}{
		{"doi", types.ExternalIDs{DOI: "10.1/x"}, true},
		{"pmid", types.ExternalIDs{PMID: "123"}, true},
		{"pmcid", types.ExternalIDs{PMCID: "PMC1"}, true},
		{"none", types.ExternalIDs{}, false},
	}
	for _, tc := range cases {
		doc := types.Document{ExternalIDs: tc.ids}
		if got := tier.Applicable(&doc); got != tc.want {
			t.Errorf("%s: Applicable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
