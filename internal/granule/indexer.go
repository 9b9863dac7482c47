package granule

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/deepice-data/atlmerge/internal/fsutil"
)

// ErrCardinality marks a track whose granule set does not match its
// expected coverage and is not covered by a configured exception.
var ErrCardinality = errors.New("unexpected segment granule set")

// Job is one unit of merge work: the merged store name for a track and
// the ordered list of contributing granule paths.
type Job struct {
	Track      int
	OutputName string
	Inputs     []string
}

// TrackError records a per-track indexing failure. Indexing failures
// never abort the scan; they are reported alongside the valid jobs.
type TrackError struct {
	Track int
	Err   error
}

func (e TrackError) Error() string {
	return fmt.Sprintf("track %04d: %v", e.Track, e.Err)
}

func (e TrackError) Unwrap() error { return e.Err }

// Indexer scans a directory of segment granules into per-track jobs.
// It is a pure scan: no side effects beyond reading the directory.
type Indexer struct {
	FS         fsutil.FileSystem
	Exceptions Exceptions
}

// Scan groups every granule under root by ground track for tracks in
// [lo, hi], validating each track's granule set against its coverage
// class. Entries that do not look like segment granules are ignored.
func (ix *Indexer) Scan(root string, lo, hi int) ([]Job, []TrackError, error) {
	if lo < MinTrack || hi > MaxTrack || lo > hi {
		return nil, nil, fmt.Errorf("track range %d..%d outside %d..%d", lo, hi, MinTrack, MaxTrack)
	}

	entries, err := ix.FS.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read input directory: %w", err)
	}

	byTrack := make(map[int][]Granule)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		g, err := ParseName(entry.Name())
		if err != nil {
			continue
		}
		byTrack[g.Track] = append(byTrack[g.Track], g)
	}

	var jobs []Job
	var failures []TrackError
	for track := lo; track <= hi; track++ {
		found := byTrack[track]
		_, wantSegments := ix.Exceptions.Classify(track)

		if err := checkSegments(found, wantSegments); err != nil {
			failures = append(failures, TrackError{Track: track, Err: err})
			continue
		}
		if len(found) == 0 {
			// Only reachable for missing-entirely tracks: skip quietly.
			continue
		}

		inputs := make([]string, len(found))
		for i, g := range found {
			inputs[i] = filepath.Join(root, g.Name)
		}
		sort.Strings(inputs)

		jobs = append(jobs, Job{
			Track:      track,
			OutputName: found[0].OutputName(),
			Inputs:     inputs,
		})
	}
	return jobs, failures, nil
}

// checkSegments verifies that the found granules cover exactly the
// expected orbital segments, once each.
func checkSegments(found []Granule, want []string) error {
	have := make(map[string]int, len(found))
	for _, g := range found {
		have[g.Segment]++
	}
	expected := make(map[string]bool, len(want))
	for _, s := range want {
		expected[s] = true
		switch have[s] {
		case 1:
		case 0:
			return fmt.Errorf("%w: segment %s absent (%d granules found, %d expected)",
				ErrCardinality, s, len(found), len(want))
		default:
			return fmt.Errorf("%w: segment %s appears %d times", ErrCardinality, s, have[s])
		}
	}
	for s := range have {
		if !expected[s] {
			return fmt.Errorf("%w: unexpected segment %s present", ErrCardinality, s)
		}
	}
	return nil
}
