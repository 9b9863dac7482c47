// Package config loads the pipeline configuration: worker tuning plus
// the release-specific coverage exception data. Exception sets are
// mission facts about a particular data release; they are supplied here
// rather than hardcoded so other releases can ship their own.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/deepice-data/atlmerge/internal/granule"
	"github.com/deepice-data/atlmerge/internal/merge"
	"github.com/deepice-data/atlmerge/internal/segment"
)

// Defaults applied for fields omitted from the JSON file.
const (
	DefaultWorkers     = 4
	DefaultUnitTimeout = "10m"
)

// PipelineConfig is the root configuration. Fields are pointers so a
// partial config file is safe: omitted fields keep their defaults.
type PipelineConfig struct {
	// Execution tuning
	Workers     *int    `json:"workers,omitempty"`
	UnitTimeout *string `json:"unit_timeout,omitempty"` // duration string like "10m"
	ChunkRows   *int    `json:"chunk_rows,omitempty"`

	// Track range to process
	TrackStart *int `json:"track_start,omitempty"`
	TrackEnd   *int `json:"track_end,omitempty"`

	// Coverage exceptions for the data release
	MissingTracks []int               `json:"missing_tracks,omitempty"`
	PartialTracks map[string][]string `json:"partial_tracks,omitempty"` // track -> absent segments
	SkipPairs     map[string][]string `json:"skip_pairs,omitempty"`     // granule basename -> absent pairs
}

// EmptyPipelineConfig returns a config with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file. The file
// must have a .json extension and stay under the max file size.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are coherent.
func (c *PipelineConfig) Validate() error {
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.UnitTimeout != nil && *c.UnitTimeout != "" {
		if _, err := time.ParseDuration(*c.UnitTimeout); err != nil {
			return fmt.Errorf("invalid unit_timeout %q: %w", *c.UnitTimeout, err)
		}
	}
	if c.ChunkRows != nil && *c.ChunkRows < 1 {
		return fmt.Errorf("chunk_rows must be at least 1, got %d", *c.ChunkRows)
	}

	lo, hi := c.TrackRange()
	if lo < granule.MinTrack || hi > granule.MaxTrack || lo > hi {
		return fmt.Errorf("track range %d..%d outside %d..%d", lo, hi, granule.MinTrack, granule.MaxTrack)
	}

	for _, track := range c.MissingTracks {
		if track < granule.MinTrack || track > granule.MaxTrack {
			return fmt.Errorf("missing_tracks entry %d out of range", track)
		}
	}
	for key, segments := range c.PartialTracks {
		track, err := strconv.Atoi(key)
		if err != nil || track < granule.MinTrack || track > granule.MaxTrack {
			return fmt.Errorf("partial_tracks key %q is not a valid track", key)
		}
		if len(segments) == 0 || len(segments) >= len(granule.Segments) {
			return fmt.Errorf("partial_tracks entry %q must list 1..%d segments", key, len(granule.Segments)-1)
		}
		for _, s := range segments {
			if !validSegment(s) {
				return fmt.Errorf("partial_tracks entry %q lists unknown segment %q", key, s)
			}
		}
	}
	for name, pairs := range c.SkipPairs {
		if _, err := granule.ParseName(name); err != nil {
			return fmt.Errorf("skip_pairs key %q: %w", name, err)
		}
		if len(pairs) == 0 {
			return fmt.Errorf("skip_pairs entry %q lists no pairs", name)
		}
		for _, p := range pairs {
			if !validPair(p) {
				return fmt.Errorf("skip_pairs entry %q lists unknown pair %q", name, p)
			}
		}
	}
	return nil
}

// GetWorkers returns the configured worker count or the default.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers != nil {
		return *c.Workers
	}
	return DefaultWorkers
}

// GetUnitTimeout returns the per-unit timeout or the default.
func (c *PipelineConfig) GetUnitTimeout() time.Duration {
	s := DefaultUnitTimeout
	if c.UnitTimeout != nil && *c.UnitTimeout != "" {
		s = *c.UnitTimeout
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		// Validate rejects unparsable values; the default always parses.
		d, _ = time.ParseDuration(DefaultUnitTimeout)
	}
	return d
}

// GetChunkRows returns the configured store chunk length, or 0 to use
// the store default.
func (c *PipelineConfig) GetChunkRows() int {
	if c.ChunkRows != nil {
		return *c.ChunkRows
	}
	return 0
}

// TrackRange returns the inclusive track range to process.
func (c *PipelineConfig) TrackRange() (int, int) {
	lo, hi := granule.MinTrack, granule.MaxTrack
	if c.TrackStart != nil {
		lo = *c.TrackStart
	}
	if c.TrackEnd != nil {
		hi = *c.TrackEnd
	}
	return lo, hi
}

// Exceptions assembles the coverage exception sets for the indexer.
func (c *PipelineConfig) Exceptions() granule.Exceptions {
	missing := make(map[int]bool, len(c.MissingTracks))
	for _, track := range c.MissingTracks {
		missing[track] = true
	}
	partial := make(map[int][]string, len(c.PartialTracks))
	for key, segments := range c.PartialTracks {
		track, err := strconv.Atoi(key)
		if err != nil {
			continue // rejected by Validate
		}
		sorted := make([]string, len(segments))
		copy(sorted, segments)
		sort.Strings(sorted)
		partial[track] = sorted
	}
	return granule.Exceptions{MissingTracks: missing, PartialTracks: partial}
}

// SkipList assembles the per-granule pair skip list for the merger.
func (c *PipelineConfig) SkipList() merge.SkipList {
	out := make(merge.SkipList, len(c.SkipPairs))
	for name, pairs := range c.SkipPairs {
		sorted := make([]string, len(pairs))
		copy(sorted, pairs)
		sort.Strings(sorted)
		out[name] = sorted
	}
	return out
}

func validSegment(s string) bool {
	for _, seg := range granule.Segments {
		if s == seg {
			return true
		}
	}
	return false
}

func validPair(p string) bool {
	for _, pair := range segment.Pairs {
		if p == pair {
			return true
		}
	}
	return false
}
