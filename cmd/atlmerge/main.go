// Command atlmerge consolidates per-segment altimetry granules into one
// chunked-array store per ground track.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/deepice-data/atlmerge/internal/batch"
	"github.com/deepice-data/atlmerge/internal/config"
	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/granule"
	"github.com/deepice-data/atlmerge/internal/merge"
	"github.com/deepice-data/atlmerge/internal/runlog"
	"github.com/deepice-data/atlmerge/internal/security"
	"github.com/deepice-data/atlmerge/internal/segment"
	"github.com/deepice-data/atlmerge/internal/version"
)

func main() {
	os.Exit(run())
}

// run carries the exit code back to main so deferred cleanup (the run
// log) executes before the process exits.
func run() int {
	var inDir string
	var outDir string
	var configPath string
	var tracks string
	var workers int
	var timeout time.Duration
	var dbPath string
	var summaryPath string
	var showVersion bool

	flag.StringVar(&inDir, "in", "", "directory of segment granules")
	flag.StringVar(&outDir, "out", "", "directory for merged track stores")
	flag.StringVar(&configPath, "config", "", "pipeline config JSON (exception sets, tuning)")
	flag.StringVar(&tracks, "tracks", "", "track range like 1-1387 (overrides config)")
	flag.IntVar(&workers, "workers", 0, "concurrent merges (overrides config)")
	flag.DurationVar(&timeout, "timeout", 0, "per-track timeout (overrides config)")
	flag.StringVar(&dbPath, "db", "", "optional sqlite run log")
	flag.StringVar(&summaryPath, "summary", "", "summary JSON path (default <out>/merge_summary.json)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return 0
	}

	if inDir == "" || outDir == "" {
		log.Fatalf("-in and -out must be provided")
	}

	cfg := config.EmptyPipelineConfig()
	if configPath != "" {
		var err error
		cfg, err = config.LoadPipelineConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	lo, hi := cfg.TrackRange()
	if tracks != "" {
		var err error
		lo, hi, err = parseTrackRange(tracks)
		if err != nil {
			log.Fatalf("invalid -tracks: %v", err)
		}
	}
	if workers == 0 {
		workers = cfg.GetWorkers()
	}
	if timeout == 0 {
		timeout = cfg.GetUnitTimeout()
	}
	if summaryPath == "" {
		summaryPath = filepath.Join(outDir, "merge_summary.json")
	}

	fs := fsutil.OSFileSystem{}
	if err := fs.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	indexer := granule.Indexer{FS: fs, Exceptions: cfg.Exceptions()}
	jobs, indexFailures, err := indexer.Scan(inDir, lo, hi)
	if err != nil {
		log.Fatalf("scan input directory: %v", err)
	}
	log.Printf("indexed %d track groups (%d with granule set problems) from %s", len(jobs), len(indexFailures), inDir)

	// Stores are written in overwrite mode; refuse any output path that
	// would reach outside the output directory.
	for _, job := range jobs {
		if err := security.ValidatePathWithinDirectory(filepath.Join(outDir, job.OutputName), outDir); err != nil {
			log.Fatalf("track %04d: %v", job.Track, err)
		}
	}

	merger := merge.Merger{
		Opener:    segment.HDF5Opener{},
		FS:        fs,
		ChunkRows: cfg.GetChunkRows(),
		Skip:      cfg.SkipList(),
	}

	runner := batch.Runner{
		Merge:   merger.MergeTrack,
		Workers: workers,
		Timeout: timeout,
	}
	if dbPath != "" {
		rl, err := runlog.Open(dbPath)
		if err != nil {
			log.Fatalf("open run log: %v", err)
		}
		defer rl.Close()
		runner.Log = rl
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := runner.Progress()
				log.Printf("progress: %d/%d merged, %d failed", p.Completed, p.Total, p.Failed)
			}
		}
	}()

	summary := runner.Run(ctx, jobs, indexFailures, outDir)
	close(done)

	if err := batch.WriteSummary(fs, summaryPath, summary); err != nil {
		log.Printf("write summary: %v", err)
	}

	if !summary.OK() {
		failed := summary.FailedTracks()
		parts := make([]string, len(failed))
		for i, track := range failed {
			parts[i] = fmt.Sprintf("%04d", track)
		}
		log.Printf("%d of %d track groups failed: %s", summary.Failures, summary.Total, strings.Join(parts, " "))
		return 1
	}
	log.Printf("merged %d track groups in %s", summary.Total, summary.CompletedAt.Sub(summary.StartedAt).Round(time.Second))
	return 0
}

// parseTrackRange accepts "N" or "N-M".
func parseTrackRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return a, a, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
