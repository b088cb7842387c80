package cluster

import (
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// Separator is the token placed between clusters in a stream.
const Separator = "//\n//\n"

// Writer writes clusters to a stream, separating consecutive clusters
// with Separator. The stream ends with a newline and no trailing
// separator.
type Writer struct {
	w   *bufio.Writer
	n   int
	err error
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes c.
func (w *Writer) Write(c *Cluster) error {
	if w.err != nil {
		return w.err
	}
	if w.n > 0 {
		w.writeString(Separator)
	}
	for _, r := range c.Reads() {
		w.writeString(">")
		w.writeString(r.Label())
		w.writeString("\n")
		w.writeString(r.Seq)
		w.writeString("\n")
	}
	w.n++
	return w.err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

func (w *Writer) writeString(s string) {
	if w.err == nil {
		_, w.err = w.w.WriteString(s)
	}
}

// Encode writes clusters to w.
func Encode(w io.Writer, clusters []Cluster) error {
	cw := NewWriter(w)
	for i := range clusters {
		if err := cw.Write(&clusters[i]); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// Scanner reads clusters from a stream. It accepts streams with or
// without a trailing separator, and ignores blank lines.
type Scanner struct {
	b    *bufio.Scanner
	err  error
	line int
}

// NewScanner returns a Scanner that reads from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), 64<<20)
	return &Scanner{b: b}
}

// Scan reads the next cluster into c. It returns false at the end of
// the stream or on error; callers should then check Err.
func (s *Scanner) Scan(c *Cluster) bool {
	if s.err != nil {
		return false
	}
	*c = Cluster{}
	var (
		n       int
		sepSeen bool
	)
	for s.b.Scan() {
		s.line++
		line := s.b.Text()
		switch {
		case line == "":
			continue
		case line == "//":
			if n == 0 {
				continue
			}
			if sepSeen {
				return true
			}
			sepSeen = true
			continue
		case line[0] != '>':
			s.err = errors.Errorf("cluster stream: line %d: expected name, got %q", s.line, line)
			return false
		}
		sepSeen = false
		name, orient := ParseLabel(line[1:])
		if !s.b.Scan() {
			s.err = errors.Errorf("cluster stream: line %d: missing sequence for %s", s.line, name)
			return false
		}
		s.line++
		r := Read{Name: name, Seq: s.b.Text(), Orient: orient}
		if n == 0 {
			c.Seed = r
		} else {
			c.Members = append(c.Members, r)
		}
		n++
	}
	if s.err = s.b.Err(); s.err == nil {
		s.err = io.EOF
	}
	return n > 0
}

// Err returns the first non-EOF error encountered by Scan.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Decode reads every cluster from r.
func Decode(r io.Reader) ([]Cluster, error) {
	var (
		s        = NewScanner(r)
		clusters []Cluster
		c        Cluster
	)
	for s.Scan(&c) {
		clusters = append(clusters, c)
	}
	return clusters, s.Err()
}

// ReadFile reads every cluster from the stream at path, decompressing
// it if needed.
func ReadFile(ctx context.Context, path string) ([]Cluster, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	var r io.Reader = f.Reader(ctx)
	if cr := compress.NewReaderPath(r, path); cr != nil {
		r = cr
	}
	clusters, err := Decode(r)
	if cerr := f.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return clusters, nil
}
