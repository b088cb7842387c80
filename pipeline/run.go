package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/radclust/encoding/fastq"
	"github.com/grailbio/radclust/scheduler"
	"github.com/grailbio/radclust/tool"
)

// StateTable is the file name, in the clustering directory, of the
// persisted sample states.
const StateTable = "s3_samples.tsv"

var fastqExts = []string{".gz", ".fastq", ".fq"}

// SampleName returns the sample name and mate number (0 for unpaired
// files) of an edits file. The name is the file's base name with FASTQ
// extensions and any "_R1_"/"_R2_" suffix removed.
func SampleName(path string) (string, int) {
	name := filepath.Base(path)
	for _, ext := range fastqExts {
		name = strings.TrimSuffix(name, ext)
	}
	for mate, marker := range []string{"_R1_", "_R2_"} {
		if i := strings.LastIndex(name, marker); i > 0 {
			return name[:i], mate + 1
		}
	}
	name = strings.TrimSuffix(name, ".trimmed")
	return name, 0
}

// Jobs groups edits files into sample jobs, in order of first
// appearance. For paired data the first-mate and second-mate files of a
// sample must come in the same order. ReadsFiltered is set to the
// number of reads in the first-mate files.
func Jobs(ctx context.Context, paths []string, paired bool) ([]*scheduler.SampleJob, error) {
	var (
		jobs   []*scheduler.SampleJob
		byName = map[string]*scheduler.SampleJob{}
		r2s    = map[string][]string{}
	)
	for _, path := range paths {
		name, mate := SampleName(path)
		job := byName[name]
		if job == nil {
			job = &scheduler.SampleJob{Name: name}
			byName[name] = job
			jobs = append(jobs, job)
		}
		if paired && mate == 2 {
			r2s[name] = append(r2s[name], path)
			continue
		}
		job.Edits = append(job.Edits, path)
	}
	if paired {
		for _, job := range jobs {
			r1 := job.Edits
			if len(r1) != len(r2s[job.Name]) {
				return nil, errors.E(errors.Invalid, "sample", job.Name, "unmatched first and second mate files")
			}
			job.Edits = nil
			for i := range r1 {
				job.Edits = append(job.Edits, r1[i], r2s[job.Name][i])
			}
		}
	}
	err := traverse.Each(len(jobs), func(i int) error {
		job := jobs[i]
		step := 1
		if paired {
			step = 2
		}
		for j := 0; j < len(job.Edits); j += step {
			n, err := fastq.Count(ctx, job.Edits[j])
			if err != nil {
				return errors.E("sample", job.Name, err)
			}
			job.Stats.ReadsFiltered += n
		}
		return nil
	})
	return jobs, err
}

// Run clusters the samples whose edits files are at paths. Sample states
// are loaded from and saved to the state table so that an interrupted
// run resumes where it stopped.
func Run(ctx context.Context, opts Opts, runner tool.Runner, paths []string) error {
	dirs := opts.Dirs()
	for _, dir := range []string{dirs.Edits, dirs.Clusts} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errors.E("creating directory", dir, err)
		}
	}
	if opts.Reference() {
		if err := os.MkdirAll(dirs.Refmap, 0777); err != nil {
			return errors.E("creating directory", dirs.Refmap, err)
		}
	}
	jobs, err := Jobs(ctx, paths, opts.DataType.Paired())
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		log.Printf("no samples ready to be clustered")
		return nil
	}
	store := scheduler.TableStore{Path: filepath.Join(dirs.Clusts, StateTable)}
	loaded, err := store.Load(ctx)
	if err != nil {
		return err
	}
	scheduler.Merge(jobs, loaded)
	s := scheduler.Scheduler{
		Opts: scheduler.Opts{
			Engines:  opts.Engines,
			MapReads: opts.Reference(),
			Force:    opts.Force,
		},
		Worker: NewWorker(opts, runner),
		Store:  store,
	}
	return s.Run(ctx, jobs)
}
