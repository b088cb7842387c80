package scheduler

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Store persists sample states between runs.
type Store interface {
	// Load returns the persisted jobs.
	Load(ctx context.Context) ([]*SampleJob, error)
	// Save persists jobs, replacing any previous content.
	Save(ctx context.Context, jobs []*SampleJob) error
}

// TableStore is a Store backed by a TSV file with one row per sample.
type TableStore struct {
	Path string
}

type stateRow struct {
	Sample          string `tsv:"sample"`
	State           string `tsv:"state"`
	Edits           string `tsv:"edits"`
	ReadsFiltered   int    `tsv:"reads_filtered"`
	ReadsMerged     int    `tsv:"reads_merged"`
	MappedReads     int    `tsv:"refseq_mapped_reads"`
	UnmappedReads   int    `tsv:"refseq_unmapped_reads"`
	ClustersTotal   int    `tsv:"clusters_total"`
	ClustersHiDepth int    `tsv:"clusters_hidepth"`
}

// Load implements Store. A missing table yields no jobs.
func (s TableStore) Load(ctx context.Context) ([]*SampleJob, error) {
	if _, err := file.Stat(ctx, s.Path); err != nil {
		return nil, nil
	}
	f, err := file.Open(ctx, s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx) // nolint: errcheck
	r := tsv.NewReader(f.Reader(ctx))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	var jobs []*SampleJob
	for {
		var row stateRow
		if err := r.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, s.Path, err)
		}
		state, err := ParseState(row.State)
		if err != nil {
			return nil, errors.E(s.Path, err)
		}
		job := &SampleJob{
			Name:  row.Sample,
			State: state,
			Stats: Stats{
				ReadsFiltered:   row.ReadsFiltered,
				ReadsMerged:     row.ReadsMerged,
				MappedReads:     row.MappedReads,
				UnmappedReads:   row.UnmappedReads,
				ClustersTotal:   row.ClustersTotal,
				ClustersHiDepth: row.ClustersHiDepth,
			},
		}
		if row.Edits != "" {
			job.Edits = strings.Split(row.Edits, ",")
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

var stateHeader = []string{
	"sample", "state", "edits", "reads_filtered", "reads_merged",
	"refseq_mapped_reads", "refseq_unmapped_reads", "clusters_total", "clusters_hidepth",
}

// Save implements Store.
func (s TableStore) Save(ctx context.Context, jobs []*SampleJob) error {
	f, err := file.Create(ctx, s.Path)
	if err != nil {
		return err
	}
	var e errors.Once
	w := tsv.NewWriter(f.Writer(ctx))
	for _, col := range stateHeader {
		w.WriteString(col)
	}
	e.Set(w.EndLine())
	for _, job := range jobs {
		w.WriteString(job.Name)
		w.WriteString(job.State.String())
		w.WriteString(strings.Join(job.Edits, ","))
		for _, n := range []int{
			job.Stats.ReadsFiltered,
			job.Stats.ReadsMerged,
			job.Stats.MappedReads,
			job.Stats.UnmappedReads,
			job.Stats.ClustersTotal,
			job.Stats.ClustersHiDepth,
		} {
			w.WriteInt64(int64(n))
		}
		e.Set(w.EndLine())
	}
	e.Set(w.Flush())
	e.Set(f.Close(ctx))
	return e.Err()
}

// Merge updates jobs with the states and stats persisted in loaded,
// matched by sample name. Jobs without a persisted row are unchanged.
func Merge(jobs, loaded []*SampleJob) {
	byName := make(map[string]*SampleJob, len(loaded))
	for _, j := range loaded {
		byName[j.Name] = j
	}
	for _, j := range jobs {
		if l, ok := byName[j.Name]; ok {
			j.State = l.State
			reads := j.Stats.ReadsFiltered
			j.Stats = l.Stats
			if reads != 0 {
				j.Stats.ReadsFiltered = reads
			}
			if len(j.Edits) == 0 {
				j.Edits = l.Edits
			}
		}
	}
}
