package refmap

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/radclust/cluster"
	"github.com/grailbio/radclust/encoding/fastq"
	"github.com/klauspost/compress/gzip"
)

// MissingQual is the Phred quality written for bases of records that
// store no qualities.
const MissingQual = 1

// Read converts r to a FASTQ read on the forward strand of the
// original read: reverse-strand records are reverse-complemented and
// their qualities reversed.
func Read(r *sam.Record) fastq.Read {
	seq := string(r.Seq.Expand())
	qual := make([]byte, len(r.Qual))
	for i, q := range r.Qual {
		if q == 0xff {
			q = MissingQual
		}
		qual[i] = q + 33
	}
	if r.Flags&sam.Reverse != 0 {
		seq = cluster.ReverseComp(seq)
		for i, j := 0, len(qual)-1; i < j; i, j = i+1, j-1 {
			qual[i], qual[j] = qual[j], qual[i]
		}
	}
	return fastq.Read{ID: "@" + r.Name, Seq: seq, Unk: "+", Qual: string(qual)}
}

// ToFASTQ writes the records of the BAM file at bamPath as gzipped FASTQ
// to fqPath and returns the number of reads written.
func ToFASTQ(ctx context.Context, bamPath, fqPath string) (int, error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return 0, errors.E(errors.Invalid, bamPath, err)
	}
	defer br.Close() // nolint: errcheck

	out, err := file.Create(ctx, fqPath)
	if err != nil {
		return 0, err
	}
	var (
		e  errors.Once
		gz = gzip.NewWriter(out.Writer(ctx))
		w  = fastq.NewWriter(gz)
		n  int
	)
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			e.Set(errors.E(errors.Invalid, bamPath, err))
			break
		}
		read := Read(r)
		if err := w.Write(&read); err != nil {
			e.Set(err)
			break
		}
		n++
	}
	e.Set(w.Flush())
	e.Set(gz.Close())
	e.Set(out.Close(ctx))
	return n, e.Err()
}
