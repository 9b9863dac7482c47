package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepice-data/atlmerge/internal/fsutil"
	"github.com/deepice-data/atlmerge/internal/granule"
	"github.com/deepice-data/atlmerge/internal/timeutil"
)

func muteLogs(t *testing.T) {
	t.Helper()
	prev := Logf
	SetLogger(nil)
	t.Cleanup(func() { Logf = prev })
}

func makeJobs(tracks ...int) []granule.Job {
	var jobs []granule.Job
	for _, track := range tracks {
		jobs = append(jobs, granule.Job{
			Track:      track,
			OutputName: fmt.Sprintf("OUT_%04d1x0_0103_01_v001.zarr", track),
			Inputs:     []string{fmt.Sprintf("SEG_%04d0100_0103_01_v001.h5", track)},
		})
	}
	return jobs
}

func TestRunAllSucceed(t *testing.T) {
	muteLogs(t)

	var mu sync.Mutex
	seen := make(map[string][]string)

	r := &Runner{
		Workers: 2,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			mu.Lock()
			seen[outPath] = inputs
			mu.Unlock()
			return nil
		},
	}

	summary := r.Run(context.Background(), makeJobs(1, 2, 3), nil, "out")

	assert.True(t, summary.OK())
	assert.Equal(t, 3, summary.Total)
	assert.Zero(t, summary.Failures)
	assert.Len(t, summary.Results, 3)
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.CompletedAt.Before(summary.StartedAt))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
	want := filepath.Join("out", "OUT_00021x0_0103_01_v001.zarr")
	assert.Equal(t, []string{"SEG_00020100_0103_01_v001.h5"}, seen[want])
}

func TestRunIsolatesFailures(t *testing.T) {
	muteLogs(t)

	r := &Runner{
		Workers: 1,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			if filepath.Base(outPath) == "OUT_00021x0_0103_01_v001.zarr" {
				return errors.New("corrupt granule")
			}
			return nil
		},
	}

	summary := r.Run(context.Background(), makeJobs(1, 2, 3), nil, "out")

	assert.False(t, summary.OK())
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, []int{2}, summary.FailedTracks())

	// The other units still ran to completion.
	ok := 0
	for _, res := range summary.Results {
		if !res.Failed() {
			ok++
		}
	}
	assert.Equal(t, 2, ok)
}

func TestRunFoldsIndexFailures(t *testing.T) {
	muteLogs(t)

	r := &Runner{
		Merge: func(ctx context.Context, outPath string, inputs []string) error { return nil },
	}

	indexFailures := []granule.TrackError{
		{Track: 7, Err: fmt.Errorf("%w: segment 11 absent", granule.ErrCardinality)},
	}
	summary := r.Run(context.Background(), makeJobs(1), indexFailures, "out")

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failures)
	assert.Equal(t, []int{7}, summary.FailedTracks())
	require.Len(t, summary.Results, 2)
	assert.Contains(t, summary.Results[0].Error, "segment 11 absent")
	assert.Empty(t, summary.Results[0].OutputPath)
}

func TestRunTimeoutFailsUnit(t *testing.T) {
	muteLogs(t)

	r := &Runner{
		Timeout: 10 * time.Millisecond,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	summary := r.Run(context.Background(), makeJobs(5), nil, "out")

	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Failed())
	assert.Contains(t, summary.Results[0].Error, "deadline")
}

func TestRunCancellation(t *testing.T) {
	muteLogs(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			return ctx.Err()
		},
	}

	summary := r.Run(ctx, makeJobs(1, 2), nil, "out")

	// Every unit still produces a result; the results report the
	// cancellation rather than vanishing.
	assert.Equal(t, 2, summary.Total)
	assert.Len(t, summary.Results, 2)
	for _, res := range summary.Results {
		assert.True(t, res.Failed())
	}
}

func TestProgress(t *testing.T) {
	muteLogs(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)

	r := &Runner{
		Workers: 1,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		},
	}

	done := make(chan Summary, 1)
	go func() {
		done <- r.Run(context.Background(), makeJobs(1, 2), nil, "out")
	}()

	<-started
	p := r.Progress()
	assert.Equal(t, 2, p.Total)
	assert.Less(t, p.Completed, 2)

	close(release)
	summary := <-done
	assert.True(t, summary.OK())

	p = r.Progress()
	assert.Equal(t, 2, p.Completed)
	assert.Zero(t, p.Failed)
}

type fakeRecorder struct {
	mu       sync.Mutex
	begun    []string
	results  []Result
	finished int
	failures int
	err      error
}

func (f *fakeRecorder) BeginRun(runID string, startedAt time.Time, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, runID)
	return f.err
}

func (f *fakeRecorder) RecordResult(runID string, res Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return f.err
}

func (f *fakeRecorder) FinishRun(runID string, completedAt time.Time, failures int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
	f.failures = failures
	return f.err
}

func TestRunRecords(t *testing.T) {
	muteLogs(t)

	rec := &fakeRecorder{}
	r := &Runner{
		Log: rec,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			return errors.New("boom")
		},
	}

	summary := r.Run(context.Background(), makeJobs(9), nil, "out")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.begun, 1)
	assert.Equal(t, summary.RunID, rec.begun[0])
	require.Len(t, rec.results, 1)
	assert.Equal(t, 9, rec.results[0].Track)
	assert.Equal(t, 1, rec.finished)
	assert.Equal(t, 1, rec.failures)
}

func TestRunSurvivesRecorderErrors(t *testing.T) {
	muteLogs(t)

	rec := &fakeRecorder{err: errors.New("database locked")}
	r := &Runner{
		Log:   rec,
		Merge: func(ctx context.Context, outPath string, inputs []string) error { return nil },
	}

	summary := r.Run(context.Background(), makeJobs(1), nil, "out")
	assert.True(t, summary.OK())
}

func TestRunRecordsDurations(t *testing.T) {
	muteLogs(t)

	clock := timeutil.NewMockClock(time.Date(2019, 6, 26, 10, 0, 0, 0, time.UTC))
	r := &Runner{
		Clock: clock,
		Merge: func(ctx context.Context, outPath string, inputs []string) error {
			clock.Advance(3 * time.Second)
			return nil
		},
	}

	summary := r.Run(context.Background(), makeJobs(1), nil, "out")

	assert.Equal(t, time.Date(2019, 6, 26, 10, 0, 0, 0, time.UTC), summary.StartedAt)
	assert.Equal(t, 3*time.Second, summary.CompletedAt.Sub(summary.StartedAt))
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 3*time.Second, summary.Results[0].Duration)
}

func TestWriteSummary(t *testing.T) {
	muteLogs(t)

	fs := fsutil.NewMemoryFileSystem()
	s := Summary{
		RunID:    "run-1",
		Total:    1,
		Failures: 1,
		Results:  []Result{{Track: 3, Error: "merge failed"}},
	}
	require.NoError(t, WriteSummary(fs, "out/summary.json", s))

	data, err := fs.ReadFile("out/summary.json")
	require.NoError(t, err)

	var got Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.RunID, got.RunID)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 3, got.Results[0].Track)
	assert.True(t, got.Results[0].Failed())
}
