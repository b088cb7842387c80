// Package scheduler runs per-sample clustering pipelines across a
// bounded pool of compute engines. A run proceeds in phases separated by
// barriers: reference mapping (optional), dereplication and clustering,
// alignment, and summary. Each phase completes for every selected
// sample before the next one starts. A sample whose persisted state
// already covers a phase is skipped for that phase unless the run is
// forced.
package scheduler

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Phase identifies a scheduler phase.
type Phase int

const (
	// PhaseMap maps reads to the reference.
	PhaseMap Phase = iota
	// PhaseCluster dereplicates and clusters reads.
	PhaseCluster
	// PhaseAlign aligns clusters.
	PhaseAlign
	// PhaseSummarize records statistics.
	PhaseSummarize
)

func (p Phase) String() string {
	switch p {
	case PhaseMap:
		return "read mapping"
	case PhaseCluster:
		return "clustering"
	case PhaseAlign:
		return "alignment"
	case PhaseSummarize:
		return "summary"
	}
	return fmt.Sprintf("phase%d", int(p))
}

// Worker performs the work of each phase. The Scheduler guarantees that
// no two calls operate on the same job concurrently.
type Worker interface {
	// MapReads maps the reads of job to the reference.
	MapReads(ctx context.Context, job *SampleJob, threads int) error
	// Dereplicate collapses the identical reads of job.
	Dereplicate(ctx context.Context, job *SampleJob, threads int) error
	// Cluster clusters the dereplicated reads of job and builds its
	// cluster stream.
	Cluster(ctx context.Context, job *SampleJob, threads int) error
	// Align aligns the cluster streams of jobs. It returns one error per
	// job, nil for jobs aligned successfully.
	Align(ctx context.Context, jobs []*SampleJob) []error
	// Summarize computes and records the statistics of jobs.
	Summarize(ctx context.Context, jobs []*SampleJob) error
}

// EngineError reports a failure of a sample job on an engine.
type EngineError struct {
	// Engine is the first engine ID of the slot that ran the job, or -1
	// if the job ran on the alignment chunk pool.
	Engine int
	Sample string
	Phase  Phase
	Err    error
}

func (e *EngineError) Error() string {
	engine := fmt.Sprintf("engine %d", e.Engine)
	if e.Engine < 0 {
		engine = "chunk pool"
	}
	return fmt.Sprintf("%s: sample %s: %s error: %v", engine, e.Sample, e.Phase, e.Err)
}

// Opts configures a Scheduler.
type Opts struct {
	// Engines is the number of compute engines.
	Engines int
	// MapReads enables the reference mapping phase.
	MapReads bool
	// Force re-runs every phase regardless of sample state.
	Force bool
}

// Scheduler runs SampleJobs through a Worker.
type Scheduler struct {
	Opts   Opts
	Worker Worker
	// Store, if non-nil, persists job states after each phase.
	Store Store
}

// ThreadsPerJob returns the number of threads given to each sample job
// on a host with the given number of engines.
func ThreadsPerJob(engines int) int {
	switch {
	case engines < 4:
		return 1
	case engines < 8:
		return 2
	case engines < 20:
		return 4
	}
	return engines / 4
}

// Partition splits engine IDs [0, engines) into consecutive slots of
// ThreadsPerJob(engines) engines each. The last slot may be smaller.
func Partition(engines int) [][]int {
	per := ThreadsPerJob(engines)
	var slots [][]int
	for i := 0; i < engines; i += per {
		var slot []int
		for j := i; j < i+per && j < engines; j++ {
			slot = append(slot, j)
		}
		slots = append(slots, slot)
	}
	return slots
}

// due reports whether job must run the phase that produces target.
func (s *Scheduler) due(job *SampleJob, target State) bool {
	return s.Opts.Force || job.State < target
}

// start returns the state job is left in if a phase starting from from
// fails. A forced run rewrites the phase's files, so a failed job loses
// any later state it had.
func (s *Scheduler) start(job *SampleJob, from State) State {
	if s.Opts.Force && job.State > from {
		return from
	}
	return job.State
}

// Run runs jobs through every phase. Jobs with no reads are not
// submitted. The first failure, in job order, of a phase aborts the run
// once every job of that phase has finished; jobs that succeeded in the
// phase keep their new state.
func (s *Scheduler) Run(ctx context.Context, jobs []*SampleJob) error {
	if s.Opts.Engines < 1 {
		return errors.E(errors.Invalid, "scheduler needs at least one engine")
	}
	var selected []*SampleJob
	for _, job := range jobs {
		if job.Stats.ReadsFiltered == 0 {
			log.Printf("skipping %s: no reads", job.Name)
			continue
		}
		selected = append(selected, job)
	}
	slots := Partition(s.Opts.Engines)
	log.Printf("running %d samples on %d slots of %d threads", len(selected), len(slots), ThreadsPerJob(s.Opts.Engines))

	if s.Opts.MapReads {
		var due []*SampleJob
		for _, job := range selected {
			if s.due(job, Mapped) {
				due = append(due, job)
			}
		}
		err := s.runPhase(ctx, PhaseMap, slots, jobs, due, func(ctx context.Context, job *SampleJob, threads int) (State, error) {
			if err := s.Worker.MapReads(ctx, job, threads); err != nil {
				return s.start(job, Unprocessed), err
			}
			return Mapped, nil
		})
		if err != nil {
			return err
		}
	}

	var due []*SampleJob
	for _, job := range selected {
		if s.due(job, Clustered) {
			due = append(due, job)
		} else {
			log.Printf("skipping %s: already %s", job.Name, job.State)
		}
	}
	err := s.runPhase(ctx, PhaseCluster, slots, jobs, due, func(ctx context.Context, job *SampleJob, threads int) (State, error) {
		from := Unprocessed
		if s.Opts.MapReads {
			from = Mapped
		}
		state := s.start(job, from)
		if s.due(job, Dereplicated) {
			if err := s.Worker.Dereplicate(ctx, job, threads); err != nil {
				return state, err
			}
			state = Dereplicated
		}
		if err := s.Worker.Cluster(ctx, job, threads); err != nil {
			return state, err
		}
		return Clustered, nil
	})
	if err != nil {
		return err
	}

	due = nil
	for _, job := range selected {
		if job.State >= Clustered && s.due(job, Aligned) {
			due = append(due, job)
		}
	}
	if len(due) > 0 {
		errs := s.Worker.Align(ctx, due)
		var first error
		for i, job := range due {
			if errs[i] != nil {
				if first == nil {
					first = &EngineError{Engine: -1, Sample: job.Name, Phase: PhaseAlign, Err: errs[i]}
				}
				continue
			}
			job.State = Aligned
		}
		if err := s.save(ctx, jobs); err != nil {
			return err
		}
		if first != nil {
			log.Error.Printf("%v", first)
			return first
		}
	}

	due = nil
	for _, job := range selected {
		if job.State >= Aligned && s.due(job, Complete) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil
	}
	if err := s.Worker.Summarize(ctx, due); err != nil {
		return errors.E("summarizing samples", err)
	}
	for _, job := range due {
		job.State = Complete
	}
	return s.save(ctx, jobs)
}

type result struct {
	engine int
	state  State
	err    error
}

// runPhase runs fn for each of jobs on the engine slots and blocks until
// every job finishes. Slots pull jobs in order. fn returns the state the
// job reached; the Scheduler applies it once the phase is over and
// persists all.
func (s *Scheduler) runPhase(ctx context.Context, phase Phase, slots [][]int, all, jobs []*SampleJob,
	fn func(ctx context.Context, job *SampleJob, threads int) (State, error)) error {
	if len(jobs) == 0 {
		return nil
	}
	log.Printf("%s: %d samples", phase, len(jobs))
	queue := make(chan int, len(jobs))
	for i := range jobs {
		queue <- i
	}
	close(queue)
	results := make([]result, len(jobs))
	// One traverse task per slot; each slot drains the queue.
	_ = traverse.Each(len(slots), func(k int) error {
		engine, threads := slots[k][0], len(slots[k])
		for i := range queue {
			log.Debug.Printf("engine %d: %s: %s", engine, phase, jobs[i].Name)
			state, err := fn(ctx, jobs[i], threads)
			results[i] = result{engine: engine, state: state, err: err}
		}
		return nil
	})

	var first error
	for i, r := range results {
		jobs[i].State = r.state
		if r.err != nil && first == nil {
			first = &EngineError{Engine: r.engine, Sample: jobs[i].Name, Phase: phase, Err: r.err}
		}
	}
	if err := s.save(ctx, all); err != nil {
		return err
	}
	if first != nil {
		log.Error.Printf("%v", first)
	}
	return first
}

func (s *Scheduler) save(ctx context.Context, jobs []*SampleJob) error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Save(ctx, jobs)
}
