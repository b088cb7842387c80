package pairmerge

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/radclust/encoding/fastq"
)

// Concat writes the FASTQ records of srcs, in order, to dst. Compressed
// sources are decompressed. It returns the number of records written.
func Concat(ctx context.Context, dst string, srcs []string) (int, error) {
	out, err := file.Create(ctx, dst)
	if err != nil {
		return 0, err
	}
	var (
		e errors.Once
		w = fastq.NewWriter(out.Writer(ctx))
		n int
	)
	for _, src := range srcs {
		m, err := copyReads(ctx, src, w, nil)
		n += m
		if err != nil {
			e.Set(errors.E(src, err))
			break
		}
	}
	e.Set(w.Flush())
	e.Set(out.Close(ctx))
	return n, e.Err()
}

// copyReads copies the reads at path to w, applying fn, if non-nil, to
// each read.
func copyReads(ctx context.Context, path string, w *fastq.Writer, fn func(*fastq.Read)) (int, error) {
	r, closer, err := fastq.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	n, err := copyStream(r, w, fn)
	if cerr := closer(); err == nil {
		err = cerr
	}
	return n, err
}

func copyStream(r io.Reader, w *fastq.Writer, fn func(*fastq.Read)) (int, error) {
	var (
		s    = fastq.NewScanner(r)
		read fastq.Read
		n    int
	)
	for s.Scan(&read) {
		if fn != nil {
			fn(&read)
		}
		if err := w.Write(&read); err != nil {
			return n, err
		}
		n++
	}
	return n, s.Err()
}
