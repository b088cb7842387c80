package main

// bio-clust-within clusters the edited reads of each sample of a RAD-seq
// assembly, aligns the clusters, and reports per-sample depth
// statistics.
//
// Example:
//
//    bio-clust-within run -project-dir=/scratch/rad -name=data1 -datatype=ddrad data1_edits/*.fastq.gz
//
// A run records sample states in <project-dir>/<name>_clust_<threshold>/s3_samples.tsv.
// Rerunning the same command resumes where the previous run stopped.

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/radclust/pipeline"
	"github.com/grailbio/radclust/tool"
	"v.io/x/lib/cmdline"
)

// indelsFlag parses "n" or "n1,n2" into the per-read internal indel
// limits.
type indelsFlag struct{ v *[2]int }

func (f indelsFlag) String() string {
	if f.v == nil {
		return ""
	}
	return fmt.Sprintf("%d,%d", f.v[0], f.v[1])
}

func (f indelsFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) > 2 {
		return fmt.Errorf("expect at most two values, got %q", s)
	}
	var v [2]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		v[i] = n
	}
	*f.v = v
	return nil
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Cluster, align and summarize samples",
		ArgsName: "edits...",
		ArgsLong: `Edits are the per-sample edited FASTQ files, optionally gzipped.
The sample name is the file name without FASTQ extensions and "_R1_"/"_R2_" suffix.`,
	}
	opts := pipeline.DefaultOpts
	var dataType string
	cmd.Flags.StringVar(&opts.ProjectDir, "project-dir", opts.ProjectDir, "Working directory of the assembly")
	cmd.Flags.StringVar(&opts.Name, "name", opts.Name, "Assembly name")
	cmd.Flags.StringVar(&dataType, "datatype", string(opts.DataType), "One of rad, ddrad, gbs, pairddrad, pairgbs, merged")
	cmd.Flags.Float64Var(&opts.ClustThreshold, "clust-threshold", opts.ClustThreshold, "Minimum identity with a cluster seed")
	cmd.Flags.StringVar(&opts.AssemblyMethod, "assembly-method", opts.AssemblyMethod, "denovo or reference")
	cmd.Flags.StringVar(&opts.ReferencePath, "reference", opts.ReferencePath, "Reference sequence for the reference assembly method")
	cmd.Flags.IntVar(&opts.MaxLowQualBases, "max-low-qual-bases", opts.MaxLowQualBases, "Maximum N bases in a merged read pair")
	cmd.Flags.IntVar(&opts.FilterMinTrimLen, "filter-min-trim-len", opts.FilterMinTrimLen, "Minimum length of a merged read pair")
	cmd.Flags.Var(indelsFlag{&opts.MaxIndelsLocus}, "max-indels-locus", "Internal indel limits of the first and second read, as n1,n2")
	cmd.Flags.IntVar(&opts.MinDepthMajrule, "mindepth-majrule", opts.MinDepthMajrule, "Minimum cluster depth for majority-rule base calls")
	cmd.Flags.IntVar(&opts.MinDepthStatistical, "mindepth-statistical", opts.MinDepthStatistical, "Minimum cluster depth for statistical base calls")
	cmd.Flags.IntVar(&opts.ChunkSize, "chunk-size", opts.ChunkSize, "Clusters per alignment chunk")
	cmd.Flags.IntVar(&opts.MaxAlignMembers, "max-align-members", opts.MaxAlignMembers, "Maximum number of reads of a cluster passed to the aligner")
	cmd.Flags.IntVar(&opts.MaxGapsInHit, "max-gaps-in-hit", opts.MaxGapsInHit, "Clusters with a hit of more gaps are rejected")
	cmd.Flags.BoolVar(&opts.NoReverse, "noreverse", opts.NoReverse, "Disable reverse-complement clustering")
	cmd.Flags.BoolVar(&opts.Force, "force", opts.Force, "Rerun every phase of every sample")
	cmd.Flags.IntVar(&opts.Engines, "engines", opts.Engines, "Number of compute engines")
	cmd.Flags.BoolVar(&opts.NoCompressScratch, "no-compress-scratch", opts.NoCompressScratch, "Store alignment chunks uncompressed")
	cmd.Flags.StringVar(&opts.Vsearch, "vsearch", opts.Vsearch, "vsearch program")
	cmd.Flags.StringVar(&opts.Muscle, "muscle", opts.Muscle, "muscle program")
	cmd.Flags.StringVar(&opts.Smalt, "smalt", opts.Smalt, "smalt program")
	cmd.Flags.StringVar(&opts.Samtools, "samtools", opts.Samtools, "samtools program")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return env.UsageErrorf("run takes at least one edits file")
		}
		opts.DataType = pipeline.DataType(dataType)
		if err := opts.Validate(env.Vars); err != nil {
			return err
		}
		return pipeline.Run(vcontext.Background(), opts, tool.Exec{Env: env.Vars}, argv)
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	shutdown := grail.Init()
	cmdline.HideGlobalFlagsExcept()
	root := &cmdline.Command{
		Name:     "bio-clust-within",
		Short:    "Within-sample clustering of RAD-seq reads",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdChecksum(),
			newCmdStats(),
		},
	}
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(root, env, os.Args[1:])
	shutdown()
	if err != nil {
		os.Exit(cmdline.ExitCode(err, env.Stderr))
	}
}
