// Package fasta contains code for streaming FASTA records. FASTA data
// consists of named sequences that may be interrupted by newlines. For
// example:
//
// >1A_0;size=4;
// TGCAGAATCC
// AGTACGG
// >1A_3;size=1;
// TGCAGGTTAC
//
// The name is the full text after '>' on the header line. The
// dereplication and clustering tools write one sequence line per
// record; the aligner wraps long sequences.
package fasta

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one named sequence.
type Record struct {
	Name string
	Seq  string
}

// Scanner reads FASTA records from a stream. Scanners are not
// threadsafe.
type Scanner struct {
	b       *bufio.Scanner
	err     error
	pending string
	// next is set when pending holds a header not yet returned.
	next    bool
	started bool
	seq     strings.Builder
}

// NewScanner returns a Scanner that reads from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), 64<<20)
	return &Scanner{b: b}
}

// Scan reads the next record into rec. Multi-line sequences are
// concatenated. A bare ">" header yields a record with an empty name.
// Once Scan returns false, it never returns true again; callers should
// then check Err.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		for s.b.Scan() {
			line := s.b.Text()
			if line == "" {
				continue
			}
			if line[0] != '>' {
				s.err = errors.Errorf("fasta: expected header, got %q", line)
				return false
			}
			s.pending, s.next = line[1:], true
			break
		}
	}
	if !s.next {
		if s.err = s.b.Err(); s.err == nil {
			s.err = io.EOF
		}
		return false
	}
	name := s.pending
	s.pending, s.next = "", false
	s.seq.Reset()
	for s.b.Scan() {
		line := s.b.Text()
		if len(line) > 0 && line[0] == '>' {
			s.pending, s.next = line[1:], true
			break
		}
		s.seq.WriteString(strings.TrimSpace(line))
	}
	rec.Name, rec.Seq = name, s.seq.String()
	return true
}

// Err returns the first non-EOF error encountered by Scan.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// ReadAll reads every record from r.
func ReadAll(r io.Reader) ([]Record, error) {
	var (
		s    = NewScanner(r)
		recs []Record
		rec  Record
	)
	for s.Scan(&rec) {
		recs = append(recs, rec)
	}
	return recs, s.Err()
}

// Writer writes FASTA records with the sequence on a single line.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes rec.
func (w *Writer) Write(rec Record) error {
	if w.err != nil {
		return w.err
	}
	_, w.err = w.w.WriteString(">" + rec.Name + "\n" + rec.Seq + "\n")
	return w.err
}

// Flush flushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}

// Size parses the abundance annotation of a dereplicated record name,
// as in "1A_0;size=4;". It returns an error if the name carries no
// size annotation.
func Size(name string) (int, error) {
	const key = ";size="
	i := strings.LastIndex(name, key)
	if i < 0 {
		return 0, errors.Errorf("fasta: no size annotation in %q", name)
	}
	v := strings.TrimSuffix(name[i+len(key):], ";")
	if j := strings.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "fasta: bad size annotation in %q", name)
	}
	if n < 1 {
		return 0, errors.Errorf("fasta: non-positive size in %q", name)
	}
	return n, nil
}
