// Package fastq reads and writes FASTQ records as they flow between the
// read-editing, pair-merging and dereplication stages.
package fastq

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when two underlying FASTQ files are discordant.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// Sep is the token placed between the two mates of a pair that could
// not be merged. It never occurs in a base-call or quality alphabet
// used by the pipeline, so downstream stages can split on it.
const Sep = "ssss"

// A Read is a FASTQ read, comprising an ID, sequence, line 3
// ("unknown"), and a quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Join combines the mates r1 and r2 into one logical read. The ID and
// line 3 are taken from r1; the sequences and qualities are joined with
// Sep.
func Join(r1, r2 Read) Read {
	return Read{
		ID:   r1.ID,
		Seq:  r1.Seq + Sep + r2.Seq,
		Unk:  r1.Unk,
		Qual: r1.Qual + Sep + r2.Qual,
	}
}

// RenameMarker replaces the suffix old of the read ID by new. It
// reports whether the ID carried the suffix.
func (r *Read) RenameMarker(old, new string) bool {
	if !strings.HasSuffix(r.ID, old) {
		return false
	}
	r.ID = r.ID[:len(r.ID)-len(old)] + new
	return true
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ records from a stream. The Scan method returns
// the next read, returning a boolean indicating whether the read
// succeeded. Scanners are not threadsafe.
//
// Scanner requires ID lines to begin with "@" and line 3 to begin with
// "+"; it does not check that sequence and quality lengths agree.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from
// the provided reader.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), 16<<20)
	return &Scanner{b: b}
}

// Scan the next read into the provided read. Once Scan returns false,
// it never returns true again. Upon completion, the user should check
// the Err method to determine whether scanning stopped because of an
// error or because the end of the stream was reached.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = errEOF
		}
		return false
	}
	id := f.b.Text()
	if len(id) == 0 || id[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	var lines [3]string
	for i := range lines {
		if !f.b.Scan() {
			if f.err = f.b.Err(); f.err == nil {
				f.err = ErrShort
			}
			return false
		}
		lines[i] = f.b.Text()
	}
	if len(lines[1]) == 0 || lines[1][0] != '+' {
		f.err = ErrInvalid
		return false
	}
	read.ID, read.Seq, read.Unk, read.Qual = id, lines[0], lines[1], lines[2]
	return true
}

// Err returns the scanning error, if any.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}

// PairScanner composes a pair of scanners to scan a pair of FASTQ
// streams.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner creates a new FASTQ pair scanner from the provided
// R1 and R2 readers.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// Scan scans the next read pair into r1, r2. A stream that ends before
// its mate is reported as ErrDiscordant.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
	}
	return ok1 && ok2
}

// Err returns the scanning error, if any. It should be checked
// after Scan returns false.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
