// Package pairmerge prepares paired-end reads for dereplication. Mates
// that overlap are merged by the external merge tool; mates that do not
// are joined into one logical read with fastq.Sep between them. The two
// sets are then written to a single edits file.
package pairmerge

import (
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/radclust/encoding/fastq"
	"github.com/grailbio/radclust/tool"
)

const (
	// MergeMarker is the ID suffix of first mates in the edits files.
	MergeMarker = "_c1"
	// MergedMarker replaces MergeMarker on merged reads so that they do
	// not collide with joined pairs.
	MergedMarker = "_m4"
)

// Opts configures the merge tool.
type Opts struct {
	// Vsearch is the merge tool program.
	Vsearch string
	// MinMergeLen is the shortest merged read kept. Values below 32 are
	// raised to 32.
	MinMergeLen int
	// MaxNs is the largest number of N bases allowed in a merged read.
	MaxNs int
	// MinOverlap is the shortest mate overlap that is merged.
	MinOverlap int
	// MaxDiffs is the largest number of mismatches in the overlap.
	MaxDiffs int
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	Vsearch:     "vsearch",
	MinMergeLen: 35,
	MaxNs:       5,
	MinOverlap:  12,
	MaxDiffs:    4,
}

// Files names the scratch and output files of one sample.
type Files struct {
	RevComp    string
	Merged     string
	NonMerged1 string
	NonMerged2 string
	// Pairs is the edits file holding joined pairs followed by merged
	// reads.
	Pairs string
}

// NewFiles returns the files of sample in dir.
func NewFiles(dir, sample string) Files {
	return Files{
		RevComp:    filepath.Join(dir, sample+"_revcomp_R2_.fastq"),
		Merged:     filepath.Join(dir, sample+"_merged_.fastq"),
		NonMerged1: filepath.Join(dir, sample+"_nonmerged_R1_.fastq"),
		NonMerged2: filepath.Join(dir, sample+"_nonmerged_R2_.fastq"),
		Pairs:      filepath.Join(dir, sample+"_pairs.fastq"),
	}
}

// Result summarizes a merge.
type Result struct {
	Files
	// NMerged is the number of mate pairs merged into one read.
	NMerged int
	// NJoined is the number of mate pairs joined with fastq.Sep.
	NJoined int
}

// Merger merges the mates of a sample.
type Merger struct {
	Opts   Opts
	Runner tool.Runner
}

// Merge merges r1 and r2 into the edits file f.Pairs. It fails with
// errors.NotExist if r2 does not exist.
func (m Merger) Merge(ctx context.Context, sample, r1, r2 string, f Files) (Result, error) {
	res := Result{Files: f}
	if _, err := file.Stat(ctx, r2); err != nil {
		return res, errors.E(errors.NotExist, "sample", sample, "no paired read file (_R2_ file) found:", r2, err)
	}
	minLen := m.Opts.MinMergeLen
	if minLen < 32 {
		minLen = 32
	}
	cmds := []tool.Cmd{
		{Name: m.Opts.Vsearch, Args: []string{"--fastx_revcomp", r2, "--fastqout", f.RevComp}},
		{Name: m.Opts.Vsearch, Args: []string{
			"--fastq_mergepairs", r1,
			"--reverse", f.RevComp,
			"--fastqout", f.Merged,
			"--fastqout_notmerged_fwd", f.NonMerged1,
			"--fastqout_notmerged_rev", f.NonMerged2,
			"--fasta_width", "0",
			"--fastq_allowmergestagger",
			"--fastq_minmergelen", strconv.Itoa(minLen),
			"--fastq_maxns", strconv.Itoa(m.Opts.MaxNs),
			"--fastq_minovlen", strconv.Itoa(m.Opts.MinOverlap),
			"--fastq_maxdiffs", strconv.Itoa(m.Opts.MaxDiffs),
		}},
	}
	for _, cmd := range cmds {
		log.Debug.Printf("%s: %s", sample, cmd)
		if err := m.Runner.Run(ctx, cmd); err != nil {
			return res, errors.E("sample", sample, "merging pairs", err)
		}
	}

	out, err := file.Create(ctx, f.Pairs)
	if err != nil {
		return res, err
	}
	var e errors.Once
	w := fastq.NewWriter(out.Writer(ctx))
	res.NJoined, err = combineFiles(ctx, f.NonMerged1, f.NonMerged2, w)
	e.Set(err)
	if e.Err() == nil {
		res.NMerged, err = appendMerged(ctx, f.Merged, w)
		e.Set(err)
	}
	e.Set(w.Flush())
	e.Set(out.Close(ctx))
	if err := e.Err(); err != nil {
		return res, errors.E("sample", sample, err)
	}
	log.Printf("%s: %d pairs merged, %d pairs joined", sample, res.NMerged, res.NJoined)
	return res, nil
}

// Combine joins the mates read from r1 and r2 and writes them to w. It
// returns the number of pairs written.
func Combine(r1, r2 io.Reader, w *fastq.Writer) (int, error) {
	var (
		s      = fastq.NewPairScanner(r1, r2)
		m1, m2 fastq.Read
		n      int
	)
	for s.Scan(&m1, &m2) {
		joined := fastq.Join(m1, m2)
		if err := w.Write(&joined); err != nil {
			return n, err
		}
		n++
	}
	return n, s.Err()
}

func combineFiles(ctx context.Context, path1, path2 string, w *fastq.Writer) (int, error) {
	r1, close1, err := fastq.Open(ctx, path1)
	if err != nil {
		return 0, err
	}
	defer close1() // nolint: errcheck
	r2, close2, err := fastq.Open(ctx, path2)
	if err != nil {
		return 0, err
	}
	defer close2() // nolint: errcheck
	return Combine(r1, r2, w)
}

// appendMerged copies the merged reads at path to w, replacing
// MergeMarker with MergedMarker in their IDs.
func appendMerged(ctx context.Context, path string, w *fastq.Writer) (int, error) {
	return copyReads(ctx, path, w, func(r *fastq.Read) {
		r.RenameMarker(MergeMarker, MergedMarker)
	})
}
