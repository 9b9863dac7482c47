// Package commands generates the shell command list that drives the
// external per-(track, segment) science processor. The pipeline never
// invokes or monitors the tool itself; executing the list is delegated
// to an external parallel-execution utility.
package commands

import (
	"fmt"
	"strings"

	"github.com/deepice-data/atlmerge/internal/granule"
)

// Params describe one batch of processor invocations.
type Params struct {
	// Tool is the processor executable name.
	Tool string
	// CycleStart and CycleEnd bound the repeat cycles to process.
	CycleStart int
	CycleEnd   int
	// Release is the data release version passed to the tool.
	Release string
	// InputGlob is the glob of per-cycle input files.
	InputGlob string
	// OutputDir receives the tool's per-track output files.
	OutputDir string
}

const DefaultTool = "atl06_to_atl11"

// Generate emits one command per (track, orbital segment) for tracks in
// [lo, hi]: positional track and segment arguments plus the cycle,
// release, input and output flags.
func Generate(p Params, lo, hi int) ([]string, error) {
	if lo < granule.MinTrack || hi > granule.MaxTrack || lo > hi {
		return nil, fmt.Errorf("track range %d..%d outside %d..%d", lo, hi, granule.MinTrack, granule.MaxTrack)
	}
	if p.CycleStart < 1 || p.CycleEnd < p.CycleStart {
		return nil, fmt.Errorf("cycle range %d..%d invalid", p.CycleStart, p.CycleEnd)
	}
	tool := p.Tool
	if tool == "" {
		tool = DefaultTool
	}

	lines := make([]string, 0, (hi-lo+1)*len(granule.Segments))
	for track := lo; track <= hi; track++ {
		for _, seg := range granule.Segments {
			lines = append(lines, fmt.Sprintf(
				"%s %04d %s --cycles %02d %02d --release %s --directory '%s' --out %s",
				tool, track, seg, p.CycleStart, p.CycleEnd, p.Release, p.InputGlob, p.OutputDir,
			))
		}
	}
	return lines, nil
}

// Script joins the command lines into a runnable listing.
func Script(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
