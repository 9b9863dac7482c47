package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPipelineConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "pipeline.json", `{
		"workers": 8,
		"unit_timeout": "30m",
		"chunk_rows": 50000,
		"track_start": 100,
		"track_end": 200,
		"missing_tracks": [5, 7],
		"partial_tracks": {"44": ["12"]},
		"skip_pairs": {"SEG_00440110_0103_01_v001": ["pt1"]}
	}`)

	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.GetWorkers())
	assert.Equal(t, 30*time.Minute, cfg.GetUnitTimeout())
	assert.Equal(t, 50000, cfg.GetChunkRows())
	lo, hi := cfg.TrackRange()
	assert.Equal(t, 100, lo)
	assert.Equal(t, 200, hi)

	ex := cfg.Exceptions()
	assert.True(t, ex.MissingTracks[5])
	assert.True(t, ex.MissingTracks[7])
	assert.Equal(t, []string{"12"}, ex.PartialTracks[44])

	skip := cfg.SkipList()
	assert.True(t, skip.Skips("SEG_00440110_0103_01_v001", "pt1"))
	assert.False(t, skip.Skips("SEG_00440110_0103_01_v001", "pt2"))
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadPipelineConfig(writeConfig(t, "pipeline.json", `{}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultWorkers, cfg.GetWorkers())
	assert.Equal(t, 10*time.Minute, cfg.GetUnitTimeout())
	assert.Zero(t, cfg.GetChunkRows())
	lo, hi := cfg.TrackRange()
	assert.Equal(t, 1, lo)
	assert.Equal(t, 1387, hi)
	assert.Empty(t, cfg.Exceptions().MissingTracks)
	assert.Empty(t, cfg.SkipList())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadPipelineConfig(writeConfig(t, "pipeline.yaml", `{}`))
	assert.ErrorContains(t, err, ".json")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPipelineConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := LoadPipelineConfig(writeConfig(t, "pipeline.json", `{"workers": `))
	assert.ErrorContains(t, err, "parse")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	intp := func(v int) *int { return &v }
	strp := func(v string) *string { return &v }

	cases := []struct {
		name    string
		cfg     PipelineConfig
		wantErr string
	}{
		{"empty is valid", PipelineConfig{}, ""},
		{"zero workers", PipelineConfig{Workers: intp(0)}, "workers"},
		{"bad timeout", PipelineConfig{UnitTimeout: strp("soon")}, "unit_timeout"},
		{"zero chunk rows", PipelineConfig{ChunkRows: intp(0)}, "chunk_rows"},
		{"track start below range", PipelineConfig{TrackStart: intp(0)}, "track range"},
		{"track end above range", PipelineConfig{TrackEnd: intp(1388)}, "track range"},
		{"inverted track range", PipelineConfig{TrackStart: intp(10), TrackEnd: intp(9)}, "track range"},
		{"missing track out of range", PipelineConfig{MissingTracks: []int{0}}, "missing_tracks"},
		{"partial key not a track", PipelineConfig{PartialTracks: map[string][]string{"abc": {"10"}}}, "partial_tracks"},
		{"partial unknown segment", PipelineConfig{PartialTracks: map[string][]string{"44": {"13"}}}, "unknown segment"},
		{"partial all segments", PipelineConfig{PartialTracks: map[string][]string{"44": {"10", "11", "12"}}}, "partial_tracks"},
		{"partial no segments", PipelineConfig{PartialTracks: map[string][]string{"44": {}}}, "partial_tracks"},
		{"skip key not a granule", PipelineConfig{SkipPairs: map[string][]string{"whatever.h5": {"pt1"}}}, "skip_pairs"},
		{"skip unknown pair", PipelineConfig{SkipPairs: map[string][]string{"SEG_00440110_0103_01_v001": {"pt4"}}}, "unknown pair"},
		{"skip no pairs", PipelineConfig{SkipPairs: map[string][]string{"SEG_00440110_0103_01_v001": {}}}, "skip_pairs"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestExceptionsSortsSegments(t *testing.T) {
	t.Parallel()

	cfg := PipelineConfig{PartialTracks: map[string][]string{"44": {"12", "10"}}}
	ex := cfg.Exceptions()
	assert.Equal(t, []string{"10", "12"}, ex.PartialTracks[44])
}
