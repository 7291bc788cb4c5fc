// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/theme-engine/pkg/types"
)

// SnapshotVersion is bumped whenever the persisted snapshot shape changes.
// LoadSnapshot rejects files written by a different version instead of
// guessing at field migrations.
const SnapshotVersion = 1

// RunSnapshot is the on-disk state of one extraction run. Only the fields
// with yaml tags persist; the transient fields (live progress, in-flight
// counters) are rebuilt on rehydration and never written.
type RunSnapshot struct {
	Version   int                     `json:"version" yaml:"version"`
	RunID     string                  `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time               `json:"created_at" yaml:"created_at"`
	Options   types.ExtractionOptions `json:"options" yaml:"options"`
	SourceIDs []string                `json:"source_ids" yaml:"source_ids"`
	Themes    []types.UnifiedTheme    `json:"themes" yaml:"themes"`
	Stats     types.RunStats          `json:"stats" yaml:"stats"`

	// Transient run state, rebuilt after load.
	LiveStats types.LiveStats `json:"-" yaml:"-"`
	InFlight  int             `json:"-" yaml:"-"`
}

// SaveSnapshot writes the snapshot to runsDir/[runID].yaml.
func SaveSnapshot(runsDir string, snap *RunSnapshot) error {
	snap.Version = SnapshotVersion
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	path := filepath.Join(runsDir, snap.RunID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot is the single rehydration point for persisted run state. It
// validates the snapshot version before trusting any field.
func LoadSnapshot(runsDir, runID string) (*RunSnapshot, error) {
	path := filepath.Join(runsDir, runID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var snap RunSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s has version %d, this build reads version %d",
			path, snap.Version, SnapshotVersion)
	}

	snap.LiveStats = types.LiveStats{
		SourcesAnalyzed:  snap.Stats.SourcesAnalyzed,
		CodesGenerated:   snap.Stats.CodesGenerated,
		ThemesIdentified: snap.Stats.ThemesIdentified,
	}
	snap.InFlight = 0
	return &snap, nil
}

// ListSnapshots returns the run IDs with snapshots in runsDir, newest first
// by file modification time.
func ListSnapshots(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading runs directory: %w", err)
	}

	type stamped struct {
		id  string
		mod time.Time
	}
	var found []stamped
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, stamped{
			id:  entry.Name()[:len(entry.Name())-len(".yaml")],
			mod: info.ModTime(),
		})
	}

	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].mod.After(found[j-1].mod); j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids, nil
}
