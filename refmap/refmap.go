// Package refmap maps a sample's edited reads to a reference before
// denovo clustering. Reads that map are set aside in a sorted BAM file;
// reads that do not map are written back out as FASTQ and become the
// input of the clustering phase.
package refmap

import (
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/radclust/tool"
)

// Opts configures the mapping tools.
type Opts struct {
	// Smalt is the read mapper program.
	Smalt string
	// Samtools is used to sort BAM files.
	Samtools string
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{Smalt: "smalt", Samtools: "samtools"}

// Files names the files produced for one sample.
type Files struct {
	SAM            string
	Mapped         string
	Unmapped       string
	SortedMapped   string
	SortedUnmapped string
	// Edits is the gzipped FASTQ of unmapped reads.
	Edits string
}

// NewFiles returns the files of sample in dir.
func NewFiles(dir, sample string) Files {
	base := filepath.Join(dir, sample)
	return Files{
		SAM:            base + ".sam",
		Mapped:         base + "-mapped.bam",
		Unmapped:       base + "-unmapped.bam",
		SortedMapped:   base + "-sorted-mapped.bam",
		SortedUnmapped: base + "-sorted-unmapped.bam",
		Edits:          base + "-unmapped.fastq.gz",
	}
}

// Result summarizes the mapping of one sample.
type Result struct {
	Files
	NMapped   int
	NUnmapped int
}

// Mapper maps reads with the external mapper.
type Mapper struct {
	Opts   Opts
	Runner tool.Runner
}

// Map maps the reads in edits to reference using the given number of
// threads.
func (m Mapper) Map(ctx context.Context, sample, edits, reference string, threads int, f Files) (Result, error) {
	res := Result{Files: f}
	for _, path := range []string{edits, reference} {
		if _, err := file.Stat(ctx, path); err != nil {
			return res, errors.E(errors.NotExist, "sample", sample, "missing mapping input", path, err)
		}
	}
	mapCmd := tool.Cmd{Name: m.Opts.Smalt, Args: []string{
		"map", "-f", "sam", "-n", strconv.Itoa(threads), "-o", f.SAM, reference, edits,
	}}
	if err := m.Runner.Run(ctx, mapCmd); err != nil {
		return res, errors.E("sample", sample, "read mapping", err)
	}
	var err error
	if res.NMapped, res.NUnmapped, err = Split(ctx, f.SAM, f.Mapped, f.Unmapped); err != nil {
		return res, errors.E("sample", sample, err)
	}
	for _, p := range [][2]string{{f.Mapped, f.SortedMapped}, {f.Unmapped, f.SortedUnmapped}} {
		sortCmd := tool.Cmd{Name: m.Opts.Samtools, Args: []string{
			"sort", "-T", f.SAM + ".tmp", "-O", "bam", p[0], "-o", p[1],
		}}
		if err := m.Runner.Run(ctx, sortCmd); err != nil {
			return res, errors.E("sample", sample, "sorting", err)
		}
	}
	if _, err := ToFASTQ(ctx, f.SortedUnmapped, f.Edits); err != nil {
		return res, errors.E("sample", sample, err)
	}
	log.Printf("%s: %d reads mapped, %d unmapped", sample, res.NMapped, res.NUnmapped)
	return res, nil
}

// Split copies the primary records of the SAM file at samPath to BAM
// files of mapped and unmapped reads, and returns the count of each.
// Secondary and supplementary alignments are dropped.
func Split(ctx context.Context, samPath, mappedPath, unmappedPath string) (nMapped, nUnmapped int, err error) {
	in, err := file.Open(ctx, samPath)
	if err != nil {
		return 0, 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	sr, err := sam.NewReader(in.Reader(ctx))
	if err != nil {
		return 0, 0, errors.E(errors.Invalid, samPath, err)
	}
	var e errors.Once
	mapped, err := newBAMWriter(ctx, mappedPath, sr.Header())
	if err != nil {
		return 0, 0, err
	}
	unmapped, err := newBAMWriter(ctx, unmappedPath, sr.Header())
	if err != nil {
		e.Set(mapped.close(ctx))
		return 0, 0, err
	}
	for e.Err() == nil {
		r, err := sr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.Set(errors.E(errors.Invalid, samPath, err))
			break
		}
		if r.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		if r.Flags&sam.Unmapped != 0 {
			nUnmapped++
			e.Set(unmapped.w.Write(r))
		} else {
			nMapped++
			e.Set(mapped.w.Write(r))
		}
	}
	e.Set(mapped.close(ctx))
	e.Set(unmapped.close(ctx))
	return nMapped, nUnmapped, e.Err()
}

type bamWriter struct {
	f file.File
	w *bam.Writer
}

func newBAMWriter(ctx context.Context, path string, h *sam.Header) (*bamWriter, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	w, err := bam.NewWriter(f.Writer(ctx), h, 1)
	if err != nil {
		_ = f.Close(ctx)
		return nil, err
	}
	return &bamWriter{f: f, w: w}, nil
}

func (b *bamWriter) close(ctx context.Context) error {
	var e errors.Once
	e.Set(b.w.Close())
	e.Set(b.f.Close(ctx))
	return e.Err()
}
