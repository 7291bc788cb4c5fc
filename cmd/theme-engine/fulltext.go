// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/theme-engine/internal/fulltext"
	"github.com/pdiddy/theme-engine/internal/logging"
	"github.com/pdiddy/theme-engine/internal/progress"
	"github.com/pdiddy/theme-engine/internal/rank"
	"github.com/pdiddy/theme-engine/internal/store"
)

var fulltextCmd = &cobra.Command{
	Use:   "fulltext [pool.yaml]",
	Short: "Acquire full text for pool documents through the tier waterfall",
	Long: `Fulltext runs the content-acquisition waterfall over a pool file's
documents: cached text first, then PubMed Central, publisher HTML scraping,
and open-access PDF resolution, in strict order. Acquired text is cached in
the local store and written back into the pool file.`,
	RunE: runFulltext,
}

func init() {
	fulltextCmd.Flags().Int("concurrency", 0, "concurrent fetches (0 = config default)")
	fulltextCmd.Flags().Bool("refresh", false, "bypass the cache tier and refetch")
	fulltextCmd.Flags().Bool("ranked-only", false, "fetch only the pool's ranked documents")

	rootCmd.AddCommand(fulltextCmd)
}

func runFulltext(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one pool file")
	}

	pool, err := rank.ReadPoolFile(args[0])
	if err != nil {
		return err
	}

	docs := pool.Documents
	rankedOnly, _ := cmd.Flags().GetBool("ranked-only")
	if rankedOnly {
		docs = docs[:0:0]
		for _, sd := range pool.Ranked {
			docs = append(docs, sd.Document)
		}
	}
	if len(docs) == 0 {
		return fmt.Errorf("pool file %s has no documents to fetch", args[0])
	}

	cfg := fulltextConfig()
	if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
		cfg.FetchConcurrency = concurrency
	}

	st, err := store.NewStore(storeConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	for i := range docs {
		if err := st.UpsertDocument(ctx, &docs[i]); err != nil {
			return err
		}
	}

	log := logging.New("fulltext")
	client := &http.Client{Timeout: cfg.Timeout}

	scrape, err := fulltext.NewScrapeTier(client, cfg.UserAgent)
	if err != nil {
		return err
	}
	tiers := []fulltext.Tier{
		&fulltext.PMCTier{Client: client, UserAgent: cfg.UserAgent, APIKey: cfg.NCBIAPIKey},
		scrape,
	}
	if cfg.PDFServiceURL != "" {
		tiers = append(tiers, &fulltext.UnpaywallTier{
			Client:    client,
			UserAgent: cfg.UserAgent,
			Email:     cfg.UnpaywallEmail,
			Extractor: &fulltext.TEIService{BaseURL: cfg.PDFServiceURL, Client: client},
		})
	}

	waterfall := fulltext.NewWaterfall(cfg, st, log, tiers...)

	var result fulltext.BatchResult
	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		// refresh bypasses the cache tier, so run documents one by one
		for i := range docs {
			res, err := waterfall.Refresh(ctx, &docs[i])
			if err != nil {
				fmt.Fprintf(os.Stdout, "failed  %s: %v\n", docs[i].ID, err)
				result.Unavailable++
				continue
			}
			switch res.Status {
			case fulltext.StatusFetched:
				fmt.Fprintf(os.Stdout, "fetched %s (%s, %d words)\n", docs[i].ID, res.Source, docs[i].WordCount)
				result.Fetched++
			default:
				fmt.Fprintf(os.Stdout, "missing %s: %s\n", docs[i].ID, res.Reason)
				result.Unavailable++
			}
		}
	} else {
		reporter := progress.NewReporter(progress.LogSink{Log: log}, log)
		result, err = waterfall.FetchBatch(ctx, docs, reporter, os.Stdout)
		if err != nil {
			return err
		}
	}

	// write the enriched documents back so extract can read them
	if rankedOnly {
		for i := range pool.Ranked {
			for j := range docs {
				if pool.Ranked[i].ID == docs[j].ID {
					pool.Ranked[i].Document = docs[j]
				}
			}
		}
	} else {
		pool.Documents = docs
	}
	if err := rank.RewritePoolFile(args[0], pool); err != nil {
		return err
	}

	if result.HasFailures() {
		return fmt.Errorf("%d document(s) have no full text; extraction will fall back to abstracts", result.Unavailable)
	}
	return nil
}
