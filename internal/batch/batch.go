// Package batch drives track-group merges as independently failable
// units of work with bounded concurrency. One track's failure never
// aborts the batch; every outcome is retained for post-run inspection.
package batch

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/granule"
	"github.com/deepice-data/atlmerge/internal/timeutil"
)

// Logf is the package-level diagnostic logger. It defaults to
// log.Printf but may be replaced by SetLogger. Tests can mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Result is the outcome of one track group's merge.
type Result struct {
	Track      int           `json:"track"`
	OutputPath string        `json:"output_path"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Failed reports whether the unit failed.
func (r Result) Failed() bool { return r.Error != "" }

// Summary is the post-run artifact: every result plus run identity.
type Summary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Total       int       `json:"total"`
	Failures    int       `json:"failures"`
	Results     []Result  `json:"results"`
}

// OK reports whether every unit succeeded.
func (s Summary) OK() bool { return s.Failures == 0 }

// FailedTracks lists the track ids that failed, in result order.
func (s Summary) FailedTracks() []int {
	var out []int
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r.Track)
		}
	}
	return out
}

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Recorder persists per-unit outcomes as they happen. Implemented by
// the sqlite run log; nil disables persistence.
type Recorder interface {
	BeginRun(runID string, startedAt time.Time, total int) error
	RecordResult(runID string, res Result) error
	FinishRun(runID string, completedAt time.Time, failures int) error
}

// MergeFunc performs one track group's merge.
type MergeFunc func(ctx context.Context, outPath string, inputs []string) error

// Runner executes a batch of merge jobs.
type Runner struct {
	Merge   MergeFunc
	Workers int            // concurrent units; min 1
	Timeout time.Duration  // per-unit; 0 disables
	Log     Recorder       // optional run history
	Clock   timeutil.Clock // nil means the real clock

	mu      sync.Mutex
	results []Result
	total   int
}

// Progress reports completion counts while Run is in flight.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Progress{Completed: len(r.results), Total: r.total}
	for _, res := range r.results {
		if res.Failed() {
			p.Failed++
		}
	}
	return p
}

// Run merges every job, writing stores under outDir. Indexer-level
// failures are folded into the summary so one artifact covers the whole
// batch. Cancellation of ctx stops submitting and interrupts running
// units; partially written stores are simply overwritten on retry.
func (r *Runner) Run(ctx context.Context, jobs []granule.Job, indexFailures []granule.TrackError, outDir string) Summary {
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	runID := uuid.NewString()
	started := clock.Now().UTC()

	r.mu.Lock()
	r.results = r.results[:0]
	r.total = len(jobs) + len(indexFailures)
	r.mu.Unlock()

	if r.Log != nil {
		if err := r.Log.BeginRun(runID, started, r.total); err != nil {
			Logf("run log unavailable: %v", err)
		}
	}

	for _, fail := range indexFailures {
		r.record(runID, Result{Track: fail.Track, Error: fail.Err.Error()})
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			r.runOne(ctx, clock, runID, job, outDir)
			return nil
		})
	}
	// Workers never return errors; failures are isolated per unit.
	_ = g.Wait()

	completed := clock.Now().UTC()

	r.mu.Lock()
	results := make([]Result, len(r.results))
	copy(results, r.results)
	r.mu.Unlock()

	summary := Summary{
		RunID:       runID,
		StartedAt:   started,
		CompletedAt: completed,
		Total:       r.total,
		Results:     results,
	}
	for _, res := range results {
		if res.Failed() {
			summary.Failures++
		}
	}

	if r.Log != nil {
		if err := r.Log.FinishRun(runID, completed, summary.Failures); err != nil {
			Logf("run log unavailable: %v", err)
		}
	}
	return summary
}

func (r *Runner) runOne(ctx context.Context, clock timeutil.Clock, runID string, job granule.Job, outDir string) {
	outPath := filepath.Join(outDir, job.OutputName)

	unitCtx := ctx
	cancel := context.CancelFunc(func() {})
	if r.Timeout > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	start := clock.Now()
	err := r.Merge(unitCtx, outPath, job.Inputs)
	res := Result{
		Track:      job.Track,
		OutputPath: outPath,
		Duration:   clock.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
		Logf("track %04d failed after %s: %v", job.Track, res.Duration.Round(time.Millisecond), err)
	} else {
		Logf("track %04d merged in %s", job.Track, res.Duration.Round(time.Millisecond))
	}
	r.record(runID, res)
}

func (r *Runner) record(runID string, res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()

	if r.Log != nil {
		if err := r.Log.RecordResult(runID, res); err != nil {
			Logf("run log unavailable: %v", err)
		}
	}
}

// WriteSummary writes the run artifact as indented JSON.
func WriteSummary(fs fsutil.FileSystem, path string, s Summary) error {
	doc, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fs.WriteFile(path, doc, 0o644)
}
