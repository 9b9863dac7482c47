// Package granule handles segment granule naming and track grouping: it
// decodes the fixed-width granule filename fields, classifies ground
// tracks against the configured coverage exceptions, and scans an input
// directory into per-track merge jobs.
package granule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// InputPrefix and OutputPrefix distinguish segment granules from
	// merged track stores.
	InputPrefix  = "SEG_"
	OutputPrefix = "OUT_"

	// SegmentPlaceholder replaces the zero-padded orbital segment field
	// in derived output store names, so one name covers every segment of
	// the track.
	SegmentPlaceholder = "1x"

	InputExt  = ".h5"
	OutputExt = ".zarr"

	// MinTrack and MaxTrack bound the repeating ground-track identifiers
	// of the mission.
	MinTrack = 1
	MaxTrack = 1387
)

// Segments lists the orbital segment codes of interest, in fixed order.
var Segments = []string{"10", "11", "12"}

// Granule name layout: SEG_TTTT0SS0_CCCC_RR_vVVV[.h5] with TTTT the
// ground track, SS the orbital segment, CCCC the cycle range, RR the
// revision and VVV the version.
var namePattern = regexp.MustCompile(`^SEG_(\d{4})0(\d{2})0_(\d{4})_(\d{2})_v(\d{3})(\.h5)?$`)

var ErrBadName = errors.New("granule name does not match pattern")

// Granule identifies one input segment file by its name-encoded fields.
type Granule struct {
	Name       string // original basename
	Track      int
	Segment    string // one of Segments
	CycleRange string
	Revision   string
	Version    string
	Ext        string // ".h5" or empty
}

// ParseName decodes a granule basename into its fields.
func ParseName(name string) (Granule, error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return Granule{}, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	track, err := strconv.Atoi(m[1])
	if err != nil || track < MinTrack || track > MaxTrack {
		return Granule{}, fmt.Errorf("%w: %q has track %q out of range", ErrBadName, name, m[1])
	}
	if !validSegment(m[2]) {
		return Granule{}, fmt.Errorf("%w: %q has unknown orbital segment %q", ErrBadName, name, m[2])
	}
	return Granule{
		Name:       name,
		Track:      track,
		Segment:    m[2],
		CycleRange: m[3],
		Revision:   m[4],
		Version:    m[5],
		Ext:        m[6],
	}, nil
}

// OutputName derives the merged store name for the granule's track: the
// input name with the output prefix, the zero-padded segment field
// replaced by the placeholder token, and the store extension.
func (g Granule) OutputName() string {
	var b strings.Builder
	b.WriteString(OutputPrefix)
	fmt.Fprintf(&b, "%04d", g.Track)
	b.WriteString(SegmentPlaceholder)
	b.WriteString("0_")
	b.WriteString(g.CycleRange)
	b.WriteString("_")
	b.WriteString(g.Revision)
	b.WriteString("_v")
	b.WriteString(g.Version)
	if g.Ext != "" {
		b.WriteString(OutputExt)
	}
	return b.String()
}

func validSegment(s string) bool {
	for _, seg := range Segments {
		if s == seg {
			return true
		}
	}
	return false
}
