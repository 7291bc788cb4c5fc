package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/theme-engine/internal/rank"
	"github.com/pdiddy/theme-engine/pkg/types"
)

var rankCmd = &cobra.Command{
	Use:   "rank [pool.yaml]",
	Short: "Rank a candidate document pool against a research query",
	Long: `Rank scores every document in a pool file against a free-text query,
matching exact terms first and stemmed variants at a discount, and writes
the ranked results back into the pool file with a summary.`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().String("query", "", "free-text research query (required)")
	rankCmd.Flags().Float64("min-score", 0, "drop documents scoring below this value")
	rankCmd.Flags().Int("max-results", 0, "maximum ranked results (0 = config default)")
	rankCmd.Flags().Bool("json", false, "print ranked results as JSON instead of a table")
	rankCmd.Flags().String("output", "", "write ranked pool to this file instead of in place")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("provide exactly one pool file")
	}
	query, _ := cmd.Flags().GetString("query")
	if query == "" {
		return fmt.Errorf("--query is required")
	}

	pool, err := rank.ReadPoolFile(args[0])
	if err != nil {
		return err
	}
	if len(pool.Documents) == 0 {
		return fmt.Errorf("pool file %s has no documents", args[0])
	}

	cfg := rankConfigFromFlags(cmd)
	scorer, err := rank.NewScorer(cfg)
	if err != nil {
		return err
	}

	compiled := scorer.Compile(query)
	ranked := scorer.Rank(compiled, pool.Documents)

	outPath, _ := cmd.Flags().GetString("output")
	if outPath == "" {
		outPath = args[0]
	}
	if err := rank.WritePoolFile(outPath, compiled, cfg, pool.Documents, ranked); err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return rank.FormatJSON(ranked, os.Stdout)
	}
	rank.FormatTable(compiled, ranked, os.Stdout)
	fmt.Fprintf(os.Stdout, "\nRanked %d of %d candidates, wrote %s\n",
		len(ranked), len(pool.Documents), outPath)
	return nil
}

func rankConfigFromFlags(cmd *cobra.Command) types.RankConfig {
	cfg := types.RankConfig{
		StemmedDiscount: viper.GetFloat64("rank.stemmed_discount"),
		K1:              viper.GetFloat64("rank.k1"),
		B:               viper.GetFloat64("rank.b"),
		PivotLength:     viper.GetInt("rank.pivot_length"),
	}
	if minScore, _ := cmd.Flags().GetFloat64("min-score"); minScore > 0 {
		cfg.MinScore = minScore
	}
	if maxResults, _ := cmd.Flags().GetInt("max-results"); maxResults > 0 {
		cfg.MaxResults = maxResults
	}
	return cfg
}
