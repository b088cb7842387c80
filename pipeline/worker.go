package pipeline

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/radclust/align"
	"github.com/grailbio/radclust/cluster"
	"github.com/grailbio/radclust/pairmerge"
	"github.com/grailbio/radclust/refmap"
	"github.com/grailbio/radclust/scheduler"
	"github.com/grailbio/radclust/stats"
	"github.com/grailbio/radclust/tool"
)

// Files names the per-sample files of a run.
type Files struct {
	// Concat1 and Concat2 hold the concatenated edits of samples with
	// several edits files.
	Concat1, Concat2 string
	// Derep is the dereplicated FASTA file.
	Derep string
	// Hits and NoHits are the clustering tool's hit table and unmatched
	// seeds.
	Hits, NoHits string
	// Clust is the unaligned cluster stream, ClustS the aligned one.
	Clust, ClustS string
}

// Files returns the files of sample.
func (d Dirs) Files(sample string) Files {
	return Files{
		Concat1: filepath.Join(d.Edits, "tmp1_"+sample+".concat"),
		Concat2: filepath.Join(d.Edits, "tmp2_"+sample+".concat"),
		Derep:   filepath.Join(d.Edits, sample+"_derep.fastq"),
		Hits:    filepath.Join(d.Clusts, sample+".utemp"),
		NoHits:  filepath.Join(d.Clusts, sample+".htemp"),
		Clust:   filepath.Join(d.Clusts, sample+".clust.gz"),
		ClustS:  filepath.Join(d.Clusts, sample+".clustS.gz"),
	}
}

// Worker implements scheduler.Worker by running the external tools
// through Runner.
type Worker struct {
	Opts   Opts
	Runner tool.Runner
	dirs   Dirs
}

// NewWorker returns a Worker for opts.
func NewWorker(opts Opts, runner tool.Runner) *Worker {
	return &Worker{Opts: opts, Runner: runner, dirs: opts.Dirs()}
}

var _ scheduler.Worker = (*Worker)(nil)

// mates splits the edits of job into first and second mates.
func (w *Worker) mates(job *scheduler.SampleJob) (r1, r2 []string, err error) {
	if !w.Opts.DataType.Paired() {
		return job.Edits, nil, nil
	}
	if len(job.Edits)%2 != 0 {
		return nil, nil, errors.E(errors.Invalid, "sample", job.Name, "odd number of paired edits files")
	}
	for i := 0; i < len(job.Edits); i += 2 {
		r1 = append(r1, job.Edits[i])
		r2 = append(r2, job.Edits[i+1])
	}
	return r1, r2, nil
}

// concatEdits returns one edits file per mate, concatenating a sample's
// edits files when it has more than one.
func (w *Worker) concatEdits(ctx context.Context, job *scheduler.SampleJob) (r1, r2 string, err error) {
	m1, m2, err := w.mates(job)
	if err != nil {
		return "", "", err
	}
	if len(m1) == 0 {
		return "", "", errors.E(errors.NotExist, "sample", job.Name, "no edits files")
	}
	f := w.dirs.Files(job.Name)
	concat := func(srcs []string, dst string) (string, error) {
		if len(srcs) == 1 {
			return srcs[0], nil
		}
		n, err := pairmerge.Concat(ctx, dst, srcs)
		if err != nil {
			return "", errors.E("sample", job.Name, "concatenating edits", err)
		}
		log.Debug.Printf("%s: concatenated %d reads from %d files", job.Name, n, len(srcs))
		return dst, nil
	}
	if r1, err = concat(m1, f.Concat1); err != nil {
		return
	}
	if len(m2) > 0 {
		r2, err = concat(m2, f.Concat2)
	}
	return
}

// MapReads implements scheduler.Worker.
func (w *Worker) MapReads(ctx context.Context, job *scheduler.SampleJob, threads int) error {
	edits, _, err := w.concatEdits(ctx, job)
	if err != nil {
		return err
	}
	m := refmap.Mapper{
		Opts:   refmap.Opts{Smalt: w.Opts.Smalt, Samtools: w.Opts.Samtools},
		Runner: w.Runner,
	}
	res, err := m.Map(ctx, job.Name, edits, w.Opts.ReferencePath, threads, refmap.NewFiles(w.dirs.Refmap, job.Name))
	if err != nil {
		return err
	}
	job.Stats.MappedReads = res.NMapped
	job.Stats.UnmappedReads = res.NUnmapped
	return nil
}

// Dereplicate implements scheduler.Worker. Paired reads are merged
// first. Reads of a mapped sample are replaced by its unmapped reads.
func (w *Worker) Dereplicate(ctx context.Context, job *scheduler.SampleJob, threads int) error {
	var edits string
	if w.Opts.Reference() && job.State >= scheduler.Mapped {
		edits = refmap.NewFiles(w.dirs.Refmap, job.Name).Edits
	} else {
		r1, r2, err := w.concatEdits(ctx, job)
		if err != nil {
			return err
		}
		edits = r1
		if w.Opts.DataType.Paired() {
			m := pairmerge.Merger{
				Opts: pairmerge.Opts{
					Vsearch:     w.Opts.Vsearch,
					MinMergeLen: w.Opts.FilterMinTrimLen,
					MaxNs:       w.Opts.MaxLowQualBases,
					MinOverlap:  pairmerge.DefaultOpts.MinOverlap,
					MaxDiffs:    pairmerge.DefaultOpts.MaxDiffs,
				},
				Runner: w.Runner,
			}
			res, err := m.Merge(ctx, job.Name, r1, r2, pairmerge.NewFiles(w.dirs.Edits, job.Name))
			if err != nil {
				return err
			}
			job.Stats.ReadsMerged = res.NMerged
			edits = res.Pairs
		}
	}
	args := []string{"-derep_fulllength", edits}
	if w.Opts.DataType.BothStrands() {
		args = append(args, "-strand", "both")
	}
	args = append(args,
		"-output", w.dirs.Files(job.Name).Derep,
		"-sizeout",
		"-threads", strconv.Itoa(threads),
		"-fasta_width", "0")
	if err := w.Runner.Run(ctx, tool.Cmd{Name: w.Opts.Vsearch, Args: args}); err != nil {
		return errors.E("sample", job.Name, "dereplication", err)
	}
	return nil
}

// clusterArgs returns the strand and query coverage arguments of the
// clustering call.
func (w *Worker) clusterArgs() []string {
	var args []string
	switch w.Opts.DataType {
	case GBS:
		args = []string{"-strand", "both", "-query_cov", ".35"}
	case PairGBS:
		args = []string{"-strand", "both", "-query_cov", ".60"}
	default:
		args = []string{"-leftjust", "-query_cov", ".90"}
	}
	if w.Opts.NoReverse && args[0] != "-leftjust" {
		log.Printf("not performing reverse complement clustering")
		args = append([]string{"-leftjust"}, args[2:]...)
	}
	return args
}

// Cluster implements scheduler.Worker.
func (w *Worker) Cluster(ctx context.Context, job *scheduler.SampleJob, threads int) error {
	f := w.dirs.Files(job.Name)
	args := append([]string{"-cluster_smallmem", f.Derep}, w.clusterArgs()...)
	args = append(args,
		"-id", strconv.FormatFloat(w.Opts.ClustThreshold, 'f', -1, 64),
		"-userout", f.Hits,
		"-userfields", "query+target+id+gaps+qstrand+qcov",
		"-maxaccepts", "1",
		"-maxrejects", "0",
		"-minsl", "0.5",
		"-fulldp",
		"-threads", strconv.Itoa(threads),
		"-usersort",
		"-notmatched", f.NoHits,
		"-fasta_width", "0")
	if err := w.Runner.Run(ctx, tool.Cmd{Name: w.Opts.Vsearch, Args: args}); err != nil {
		return errors.E("sample", job.Name, "clustering", err)
	}
	b := cluster.Builder{MaxGaps: w.Opts.MaxGapsInHit}
	return b.BuildFile(ctx, job.Name, cluster.Paths{
		Derep:  f.Derep,
		Hits:   f.Hits,
		NoHits: f.NoHits,
		Out:    f.Clust,
	})
}

// Align implements scheduler.Worker.
func (w *Worker) Align(ctx context.Context, jobs []*scheduler.SampleJob) []error {
	opts := align.DefaultOpts
	opts.ChunkSize = w.Opts.ChunkSize
	opts.MaxMembers = w.Opts.MaxAlignMembers
	opts.MaxInternalGaps = w.Opts.MaxIndelsLocus[0] + w.Opts.MaxIndelsLocus[1]
	opts.Parallelism = w.Opts.Engines
	opts.Muscle = w.Opts.Muscle
	opts.NoCompressTmpFiles = w.Opts.NoCompressScratch
	samples := make([]align.Sample, len(jobs))
	for i, job := range jobs {
		f := w.dirs.Files(job.Name)
		samples[i] = align.Sample{Name: job.Name, In: f.Clust, Out: f.ClustS}
	}
	return align.New(opts, w.Runner).AlignSamples(ctx, samples)
}

// Summarize implements scheduler.Worker. It records the depth statistics
// of each job and appends them to the run report.
func (w *Worker) Summarize(ctx context.Context, jobs []*scheduler.SampleJob) error {
	summaries := make([]stats.Summary, 0, len(jobs))
	for _, job := range jobs {
		depths, err := stats.DepthsFile(ctx, w.dirs.Files(job.Name).ClustS)
		if err != nil {
			return errors.E("sample", job.Name, err)
		}
		if len(depths) == 0 {
			log.Printf("no clusters found for %s", job.Name)
		}
		s := stats.Summarize(job.Name, job.Stats.ReadsFiltered, depths,
			w.Opts.MinDepthMajrule, w.Opts.MinDepthStatistical)
		s.MergedReads = job.Stats.ReadsMerged
		s.MappedReads = job.Stats.MappedReads
		s.UnmappedReads = job.Stats.UnmappedReads
		job.Stats.ClustersTotal = s.ClustersTotal
		job.Stats.ClustersHiDepth = s.ClustersHiDepth
		summaries = append(summaries, s)
	}
	if err := stats.Append(ctx, w.ReportPath(), summaries); err != nil {
		return err
	}
	return stats.AppendTSV(ctx, filepath.Join(w.dirs.Clusts, stats.TSVName), summaries)
}

// ReportPath is the path of the run report.
func (w *Worker) ReportPath() string {
	return filepath.Join(w.dirs.Clusts, stats.ReportName)
}
