// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/theme-engine/internal/store"
)

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Inspect and export stored theme runs",
	Long: `Themes reads extraction runs from the local store. Use subcommands to
list a run's unified themes or export a run to YAML or JSON.`,
}

// --- list subcommand ---

var themesListCmd = &cobra.Command{
	Use:   "list [run-id]",
	Short: "List a run's unified themes",
	Long: `List prints a run's themes with weight, confidence, and contributing
source counts. Without a run ID the most recent run is shown.`,
	RunE: runThemesList,
}

func runThemesList(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}

	runsOnly, _ := cmd.Flags().GetBool("runs")
	if runsOnly {
		runs, err := st.ListRuns(context.Background())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-8s  %-8s  %s\n",
			"Run", "Created", "Sources", "Codes", "Themes")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
		for _, r := range runs {
			fmt.Fprintf(os.Stdout, "%-36s  %-20s  %-8d  %-8d  %d\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.Stats.SourcesAnalyzed, r.Stats.CodesGenerated, r.Stats.ThemesIdentified)
		}
		return nil
	}

	themes, err := st.ListThemes(context.Background(), runID)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(themes)
	}

	if len(themes) == 0 {
		fmt.Println("No themes found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-40s  %-8s  %-10s  %-8s  %s\n",
		"Rank", "Label", "Weight", "Confidence", "Sources", "Keywords")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for i, theme := range themes {
		label := theme.Label
		if len(label) > 40 {
			label = label[:37] + "..."
		}
		keywords := strings.Join(theme.Keywords, ", ")
		if len(keywords) > 30 {
			keywords = keywords[:27] + "..."
		}
		marker := ""
		if theme.Controversial {
			marker = " !"
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-40s  %-8.2f  %-10.2f  %-8d  %s%s\n",
			i+1, label, theme.Weight, theme.Confidence, len(theme.Sources), keywords, marker)
	}
	fmt.Fprintf(os.Stdout, "\n%d themes\n", len(themes))
	return nil
}

// --- export subcommand ---

var themesExportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export a run's themes to YAML or JSON",
	Long: `Export writes a run (themes, options, stats) to the themes directory.
Without a run ID the most recent run is exported.`,
	RunE: runThemesExport,
}

func runThemesExport(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(storeConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	runID := ""
	if len(args) > 0 {
		runID = args[0]
	}
	format, _ := cmd.Flags().GetString("format")

	var path string
	switch format {
	case "yaml", "":
		path, err = st.ExportYAML(context.Background(), runID)
	case "json":
		path, err = st.ExportJSON(context.Background(), runID)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}

	fmt.Println("Exported to", path)
	return nil
}

func init() {
	themesListCmd.Flags().Bool("json", false, "output themes as JSON")
	themesListCmd.Flags().Bool("runs", false, "list stored runs instead of themes")

	themesExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	themesCmd.AddCommand(themesListCmd)
	themesCmd.AddCommand(themesExportCmd)

	rootCmd.AddCommand(themesCmd)
}
