package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	mu      sync.Mutex
	events  []string
	threads map[string]int
	fail    map[string]error
	delay   map[string]time.Duration
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{threads: map[string]int{}, fail: map[string]error{}, delay: map[string]time.Duration{}}
}

func (w *fakeWorker) record(event string) {
	w.mu.Lock()
	w.events = append(w.events, event)
	w.mu.Unlock()
}

func (w *fakeWorker) step(op string, job *SampleJob, threads int) error {
	w.record(op + "-start " + job.Name)
	time.Sleep(w.delay[op+" "+job.Name])
	w.mu.Lock()
	if threads > 0 {
		w.threads[job.Name] = threads
	}
	err := w.fail[op+" "+job.Name]
	w.mu.Unlock()
	w.record(op + "-end " + job.Name)
	return err
}

func (w *fakeWorker) MapReads(ctx context.Context, job *SampleJob, threads int) error {
	return w.step("map", job, threads)
}

func (w *fakeWorker) Dereplicate(ctx context.Context, job *SampleJob, threads int) error {
	return w.step("derep", job, threads)
}

func (w *fakeWorker) Cluster(ctx context.Context, job *SampleJob, threads int) error {
	return w.step("cluster", job, threads)
}

func (w *fakeWorker) Align(ctx context.Context, jobs []*SampleJob) []error {
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		errs[i] = w.step("align", job, 0)
	}
	return errs
}

func (w *fakeWorker) Summarize(ctx context.Context, jobs []*SampleJob) error {
	for _, job := range jobs {
		w.record("summarize " + job.Name)
	}
	return nil
}

func (w *fakeWorker) index(event string) int {
	for i, e := range w.events {
		if e == event {
			return i
		}
	}
	return -1
}

func newJobs(names ...string) []*SampleJob {
	var jobs []*SampleJob
	for _, name := range names {
		jobs = append(jobs, &SampleJob{Name: name, Stats: Stats{ReadsFiltered: 10}})
	}
	return jobs
}

func TestThreadsPerJob(t *testing.T) {
	for _, test := range []struct{ engines, want int }{
		{1, 1}, {3, 1}, {4, 2}, {7, 2}, {8, 4}, {19, 4}, {20, 5}, {40, 10},
	} {
		assert.Equal(t, test.want, ThreadsPerJob(test.engines), "engines=%d", test.engines)
	}
}

func TestPartition(t *testing.T) {
	expect.That(t, Partition(3), h.ElementsAre([]int{0}, []int{1}, []int{2}))
	expect.That(t, Partition(5), h.ElementsAre([]int{0, 1}, []int{2, 3}, []int{4}))
	assert.Len(t, Partition(8), 2)
	assert.Len(t, Partition(40), 4)
}

func TestRunPhaseOrder(t *testing.T) {
	w := newFakeWorker()
	// Make one sample's mapping slow so that a missing barrier would
	// let the other sample start clustering first.
	w.delay["map s1"] = 20 * time.Millisecond
	jobs := newJobs("s1", "s2", "s3")
	s := Scheduler{Opts: Opts{Engines: 4, MapReads: true}, Worker: w}
	require.NoError(t, s.Run(vcontext.Background(), jobs))

	lastMap := -1
	for _, job := range jobs {
		if i := w.index("map-end " + job.Name); i > lastMap {
			lastMap = i
		}
	}
	for _, job := range jobs {
		assert.True(t, w.index("derep-start "+job.Name) > lastMap, job.Name)
		assert.True(t, w.index("cluster-start "+job.Name) > w.index("derep-end "+job.Name), job.Name)
		assert.True(t, w.index("align-start "+job.Name) > w.index("cluster-end "+job.Name), job.Name)
		assert.Equal(t, Complete, job.State)
		assert.Equal(t, 2, w.threads[job.Name])
	}
}

func TestRunSkipsCompleteSamples(t *testing.T) {
	w := newFakeWorker()
	jobs := newJobs("s1")
	jobs[0].State = Complete
	s := Scheduler{Opts: Opts{Engines: 2, MapReads: true}, Worker: w}
	require.NoError(t, s.Run(vcontext.Background(), jobs))
	assert.Empty(t, w.events)
	assert.Equal(t, Complete, jobs[0].State)

	w = newFakeWorker()
	s.Worker = w
	s.Opts.Force = true
	require.NoError(t, s.Run(vcontext.Background(), jobs))
	assert.True(t, w.index("map-start s1") >= 0)
	assert.True(t, w.index("derep-start s1") >= 0)
	assert.True(t, w.index("align-start s1") >= 0)
	assert.True(t, w.index("summarize s1") >= 0)
}

func TestRunResumes(t *testing.T) {
	w := newFakeWorker()
	jobs := newJobs("s1", "s2", "s3")
	jobs[0].State = Dereplicated
	jobs[1].State = Clustered
	jobs[2].Stats.ReadsFiltered = 0
	s := Scheduler{Opts: Opts{Engines: 1}, Worker: w}
	require.NoError(t, s.Run(vcontext.Background(), jobs))

	assert.Equal(t, -1, w.index("derep-start s1"))
	assert.True(t, w.index("cluster-start s1") >= 0)
	assert.Equal(t, -1, w.index("cluster-start s2"))
	assert.True(t, w.index("align-start s2") >= 0)
	for _, e := range w.events {
		assert.NotContains(t, e, "s3")
	}
	assert.Equal(t, Unprocessed, jobs[2].State)
	assert.Equal(t, -1, w.index("map-start s1"))
}

func TestRunFailure(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	w := newFakeWorker()
	w.fail["cluster s2"] = errors.New("vsearch: exit status 1\nFatal error: cannot open file")
	// s3 fails too, but s2 comes first in result order.
	w.fail["cluster s3"] = errors.New("another failure")
	jobs := newJobs("s1", "s2", "s3", "s4")
	store := TableStore{Path: filepath.Join(tmpdir, "states.tsv")}
	s := Scheduler{Opts: Opts{Engines: 4}, Worker: w, Store: store}
	err := s.Run(ctx, jobs)
	require.Error(t, err)
	eerr, ok := err.(*EngineError)
	require.True(t, ok)
	assert.Equal(t, "s2", eerr.Sample)
	assert.Equal(t, PhaseCluster, eerr.Phase)
	assert.Contains(t, err.Error(), "cannot open file")
	assert.Contains(t, err.Error(), fmt.Sprintf("engine %d", eerr.Engine))
	// Engine ids are the first engine of a slot.
	assert.Contains(t, []int{0, 2}, eerr.Engine)

	// Every job of the failed phase ran; no alignment started.
	assert.True(t, w.index("cluster-end s4") >= 0)
	for _, e := range w.events {
		assert.NotContains(t, e, "align")
	}
	states := map[string]State{}
	for _, j := range jobs {
		states[j.Name] = j.State
	}
	assert.Equal(t, map[string]State{"s1": Clustered, "s2": Dereplicated, "s3": Dereplicated, "s4": Clustered}, states)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.Equal(t, Dereplicated, loaded[1].State)
	assert.Equal(t, 10, loaded[1].Stats.ReadsFiltered)
}

func TestRunAlignFailure(t *testing.T) {
	w := newFakeWorker()
	w.fail["align s1"] = errors.New("muscle died")
	jobs := newJobs("s1", "s2")
	s := Scheduler{Opts: Opts{Engines: 2}, Worker: w}
	err := s.Run(vcontext.Background(), jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk pool")
	assert.Equal(t, Clustered, jobs[0].State)
	assert.Equal(t, Aligned, jobs[1].State)
	assert.Equal(t, -1, w.index("summarize s2"))
}

func TestRunForcedFailureResetsState(t *testing.T) {
	w := newFakeWorker()
	w.fail["derep s1"] = errors.New("disk full")
	w.fail["cluster s2"] = errors.New("out of memory")
	jobs := newJobs("s1", "s2", "s3")
	for _, job := range jobs {
		job.State = Complete
	}
	s := Scheduler{Opts: Opts{Engines: 1, Force: true}, Worker: w}
	require.Error(t, s.Run(vcontext.Background(), jobs))
	assert.Equal(t, Unprocessed, jobs[0].State)
	assert.Equal(t, Dereplicated, jobs[1].State)
	assert.Equal(t, Clustered, jobs[2].State)

	// A later run without Force redoes the failed work.
	w = newFakeWorker()
	s = Scheduler{Opts: Opts{Engines: 1}, Worker: w}
	require.NoError(t, s.Run(vcontext.Background(), jobs))
	assert.True(t, w.index("derep-start s1") >= 0)
	assert.Equal(t, -1, w.index("derep-start s2"))
	assert.True(t, w.index("cluster-start s2") >= 0)
	assert.Equal(t, -1, w.index("cluster-start s3"))
	for _, job := range jobs {
		assert.Equal(t, Complete, job.State, job.Name)
	}
}

func TestRunForcedMapFailure(t *testing.T) {
	w := newFakeWorker()
	w.fail["map s1"] = errors.New("smalt failed")
	w.fail["align s2"] = errors.New("muscle died")
	jobs := newJobs("s1")
	jobs[0].State = Complete
	s := Scheduler{Opts: Opts{Engines: 1, MapReads: true, Force: true}, Worker: w}
	require.Error(t, s.Run(vcontext.Background(), jobs))
	assert.Equal(t, Unprocessed, jobs[0].State)

	jobs = newJobs("s2")
	jobs[0].State = Complete
	s.Worker = w
	s.Opts.MapReads = false
	require.Error(t, s.Run(vcontext.Background(), jobs))
	assert.Equal(t, Clustered, jobs[0].State)
}

func TestRunNoEngines(t *testing.T) {
	s := Scheduler{Worker: newFakeWorker()}
	assert.Error(t, s.Run(vcontext.Background(), newJobs("s1")))
}
