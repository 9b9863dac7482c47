package granule

import "sort"

// Coverage classifies a ground track's expected segment availability.
type Coverage int

const (
	// CoverageComplete tracks have all three orbital segments.
	CoverageComplete Coverage = iota
	// CoverageMissingSegments tracks lack an enumerated subset of segments.
	CoverageMissingSegments
	// CoverageMissingEntirely tracks have no granules at all.
	CoverageMissingEntirely
)

func (c Coverage) String() string {
	switch c {
	case CoverageComplete:
		return "complete"
	case CoverageMissingSegments:
		return "missing-segments"
	case CoverageMissingEntirely:
		return "missing-entirely"
	}
	return "unknown"
}

// Exceptions holds the mission-specific coverage deviations. These are
// data-release facts supplied by configuration, not derivable rules.
type Exceptions struct {
	// MissingTracks are ground tracks with no granules in the release.
	MissingTracks map[int]bool
	// PartialTracks maps a ground track to the orbital segments it lacks.
	PartialTracks map[int][]string
}

// Classify returns the coverage class for a track and, for partial
// tracks, the sorted list of segments expected to be present.
func (e Exceptions) Classify(track int) (Coverage, []string) {
	if e.MissingTracks[track] {
		return CoverageMissingEntirely, nil
	}
	if missing, ok := e.PartialTracks[track]; ok && len(missing) > 0 {
		absent := make(map[string]bool, len(missing))
		for _, s := range missing {
			absent[s] = true
		}
		var present []string
		for _, s := range Segments {
			if !absent[s] {
				present = append(present, s)
			}
		}
		sort.Strings(present)
		return CoverageMissingSegments, present
	}
	present := make([]string, len(Segments))
	copy(present, Segments)
	return CoverageComplete, present
}
