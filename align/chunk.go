package align

import (
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/golang/snappy"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/radclust/cluster"
)

// scratch is a chunk file on local disk.
type scratch struct {
	path     string
	compress bool
}

func newScratch(dir, prefix string, compress bool) (scratch, *os.File, error) {
	f, err := ioutil.TempFile(dir, prefix+"_*.ali")
	if err != nil {
		return scratch{}, nil, err
	}
	return scratch{path: f.Name(), compress: compress}, f, nil
}

// createScratch creates a new scratch file in dir and calls fn with a writer
// to it.
func createScratch(dir, prefix string, compress bool, fn func(w io.Writer) error) (scratch, error) {
	s, f, err := newScratch(dir, prefix, compress)
	if err != nil {
		return s, err
	}
	var (
		e   errors.Once
		w   io.Writer
		buf *bufio.Writer
		sw  *snappy.Writer
	)
	if compress {
		sw = snappy.NewBufferedWriter(f)
		w = sw
	} else {
		buf = bufio.NewWriter(f)
		w = buf
	}
	e.Set(fn(w))
	if sw != nil {
		e.Set(sw.Close())
	} else {
		e.Set(buf.Flush())
	}
	e.Set(f.Close())
	return s, e.Err()
}

// read calls fn with a reader over the contents of s.
func (s scratch) read(fn func(r io.Reader) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	var r io.Reader = bufio.NewReader(f)
	if s.compress {
		r = snappy.NewReader(r)
	}
	err = fn(r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s scratch) remove() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Error.Printf("remove %s: %v", s.path, err)
	}
}

// split reads the cluster stream at path and writes it to scratch files
// of at most n clusters each. Scratch files created before an error are
// returned so the caller can remove them.
func split(ctx context.Context, path, dir, prefix string, n int, compressTmp bool) ([]scratch, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.NotExist, "open cluster stream", path, err)
	}
	defer f.Close(ctx) // nolint: errcheck
	var r io.Reader = f.Reader(ctx)
	if cr := compress.NewReaderPath(r, path); cr != nil {
		r = cr
	}
	var (
		chunks []scratch
		sc     = cluster.NewScanner(r)
		c      cluster.Cluster
		more   = sc.Scan(&c)
	)
	for more {
		s, err := createScratch(dir, prefix+"_"+strconv.Itoa(len(chunks)), compressTmp, func(w io.Writer) error {
			cw := cluster.NewWriter(w)
			for i := 0; i < n && more; i++ {
				if err := cw.Write(&c); err != nil {
					return err
				}
				more = sc.Scan(&c)
			}
			return cw.Flush()
		})
		if s.path != "" {
			chunks = append(chunks, s)
		}
		if err != nil {
			return chunks, err
		}
	}
	if err := sc.Err(); err != nil {
		return chunks, errors.E(errors.Invalid, path, err)
	}
	return chunks, nil
}
