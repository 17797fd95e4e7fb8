// Package config loads and hot-reloads the process-wide arena
// configuration: a small JSON document naming a schema version and the
// region-arena options derived from it.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	semver "github.com/Masterminds/semver/v3"

	"github.com/regionarena/regionarena/internal/arena"
)

// SupportedSchema is the range of config schema versions this build
// understands. A config file outside this range is rejected rather
// than silently misinterpreted.
const SupportedSchema = ">=1.0.0, <2.0.0"

// FileConfig is the on-disk shape of the arena configuration file.
type FileConfig struct {
	SchemaVersion     string `json:"schema_version"`
	EagerRegionCommit bool   `json:"eager_region_commit"`
	WarmupRegions     int    `json:"warmup_regions"`
	WarmupConcurrency int    `json:"warmup_concurrency"`
}

// Load reads and validates the config file at path.
func Load(path string) (FileConfig, error) {
	var fc FileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := fc.validate(); err != nil {
		return fc, err
	}

	return fc, nil
}

func (fc FileConfig) validate() error {
	v, err := semver.NewVersion(fc.SchemaVersion)
	if err != nil {
		return fmt.Errorf("config: invalid schema_version %q: %w", fc.SchemaVersion, err)
	}

	c, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return fmt.Errorf("config: invalid constraint %q: %w", SupportedSchema, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("config: schema_version %s does not satisfy %s", fc.SchemaVersion, SupportedSchema)
	}

	if fc.WarmupConcurrency < 0 || fc.WarmupRegions < 0 {
		return fmt.Errorf("config: warmup_regions and warmup_concurrency must be non-negative")
	}

	return nil
}

// ArenaOptions derives arena.Options from the loaded file configuration.
func (fc FileConfig) ArenaOptions(stats arena.StatsSink) arena.Options {
	return arena.Options{
		EagerRegionCommit: fc.EagerRegionCommit,
		Stats:             stats,
	}
}
