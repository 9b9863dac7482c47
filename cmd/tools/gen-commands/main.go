// Command gen-commands emits the batch command list for the external
// per-(track, segment) science processor. The list is meant to be fed
// to a parallel-execution utility; nothing here runs the tool.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/deepice-data/atlmerge/internal/commands"
	"github.com/deepice-data/atlmerge/internal/granule"
)

func main() {
	var tool string
	var tracks string
	var cycleStart int
	var cycleEnd int
	var release string
	var inputGlob string
	var outputDir string
	var outFile string

	flag.StringVar(&tool, "tool", commands.DefaultTool, "processor executable")
	flag.StringVar(&tracks, "tracks", fmt.Sprintf("%d-%d", granule.MinTrack, granule.MaxTrack), "track range like 1-1387")
	flag.IntVar(&cycleStart, "cycle-start", 1, "first repeat cycle")
	flag.IntVar(&cycleEnd, "cycle-end", 3, "last repeat cycle")
	flag.StringVar(&release, "release", "001", "data release version")
	flag.StringVar(&inputGlob, "glob", "", "input file glob passed to the tool")
	flag.StringVar(&outputDir, "out-dir", "", "tool output directory")
	flag.StringVar(&outFile, "o", "", "write the list here instead of stdout")
	flag.Parse()

	if inputGlob == "" || outputDir == "" {
		log.Fatalf("-glob and -out-dir must be provided")
	}

	var lo, hi int
	if _, err := fmt.Sscanf(tracks, "%d-%d", &lo, &hi); err != nil {
		if _, err := fmt.Sscanf(tracks, "%d", &lo); err != nil {
			log.Fatalf("invalid -tracks %q", tracks)
		}
		hi = lo
	}

	lines, err := commands.Generate(commands.Params{
		Tool:       tool,
		CycleStart: cycleStart,
		CycleEnd:   cycleEnd,
		Release:    release,
		InputGlob:  inputGlob,
		OutputDir:  outputDir,
	}, lo, hi)
	if err != nil {
		log.Fatalf("generate commands: %v", err)
	}

	script := commands.Script(lines)
	if outFile == "" {
		fmt.Print(script)
		return
	}
	if err := os.WriteFile(outFile, []byte(script), 0o644); err != nil {
		log.Fatalf("write %s: %v", outFile, err)
	}
	log.Printf("wrote %d commands to %s", len(lines), outFile)
}
