package fastq

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Open opens the FASTQ file at path for reading. Compressed files are
// decompressed transparently. The returned closer must be called when
// the caller is done reading.
func Open(ctx context.Context, path string) (io.Reader, func() error, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(errors.NotExist, "open fastq", path, err)
	}
	var r io.Reader = f.Reader(ctx)
	if cr := compress.NewReaderPath(r, path); cr != nil {
		r = cr
	}
	return r, func() error { return f.Close(ctx) }, nil
}

// Count returns the number of FASTQ records in the file at path.
func Count(ctx context.Context, path string) (int, error) {
	r, closer, err := Open(ctx, path)
	if err != nil {
		return 0, err
	}
	var (
		s    = NewScanner(r)
		read Read
		n    int
	)
	for s.Scan(&read) {
		n++
	}
	err = s.Err()
	if cerr := closer(); err == nil {
		err = cerr
	}
	return n, err
}
