// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the theme-engine CLI.
// Implements: prd001-ranking, prd002-fulltext, prd003-extraction,
//             prd004-themes, prd007-store (CLI surface).
// See docs/ARCHITECTURE § Pipeline Interface, § Project Structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/theme-engine/internal/secrets"
	"github.com/pdiddy/theme-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the theme-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "theme-engine",
	Short: "Relevance ranking and multi-source theme extraction",
	Long: `theme-engine ranks a candidate document pool against a research query,
acquires full text through a tiered waterfall, and extracts deduplicated
themes from heterogeneous sources (papers, videos, podcasts, social posts).

Each pipeline stage is a subcommand: rank, fulltext, extract, themes, and
reconcile. Stages read and write shared pool and run files so they compose
into end-to-end workflows.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./theme-engine.yaml or ~/.config/theme-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("theme-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "theme-engine"))
		}
	}

	viper.SetEnvPrefix("THEME_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// storeConfig assembles the store paths from config with defaults.
func storeConfig() types.StoreConfig {
	cfg := types.StoreConfig{
		DBPath:    viper.GetString("store.db_path"),
		RunsDir:   viper.GetString("store.runs_dir"),
		ThemesDir: viper.GetString("store.themes_dir"),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "theme-engine.db"
	}
	if cfg.RunsDir == "" {
		cfg.RunsDir = "runs"
	}
	if cfg.ThemesDir == "" {
		cfg.ThemesDir = "themes"
	}
	return cfg
}

// fulltextConfig assembles the waterfall configuration from config and
// secrets with defaults.
func fulltextConfig() types.FullTextConfig {
	cfg := types.FullTextConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   viper.GetDuration("fulltext.timeout"),
			UserAgent: viper.GetString("fulltext.user_agent"),
		},
		TierTimeout:      viper.GetDuration("fulltext.tier_timeout"),
		MinTextLength:    viper.GetInt("fulltext.min_text_length"),
		FetchConcurrency: viper.GetInt("fulltext.fetch_concurrency"),
		StuckFetchAge:    viper.GetDuration("fulltext.stuck_fetch_age"),
		UnpaywallEmail:   secretDefault("unpaywall-email", viper.GetString("fulltext.unpaywall_email")),
		NCBIAPIKey:       secretDefault("ncbi-api-key", viper.GetString("fulltext.ncbi_api_key")),
		PDFServiceURL:    viper.GetString("fulltext.pdf_service_url"),
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "theme-engine/0.1"
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
