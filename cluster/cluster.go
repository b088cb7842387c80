// Package cluster converts dereplicated reads and clustering hit records
// into orientation-aware clusters, and reads and writes the cluster
// stream format shared by the clustering and alignment stages.
//
// A cluster stream is a sequence of clusters separated by the two-line
// token "//\n//\n". Each cluster is a seed line, a sequence line, then
// zero or more member line pairs:
//
//   >1A_0;size=4;*
//   TGCAGAATCC
//   >1A_3;size=1;+
//   TGCAGAATCC
//   >1A_7;size=2;-
//   TGCAGTATCC
//   //
//   //
//
// The trailing character of each name line is the orientation: '*' for
// the seed, '+' for a member on the seed's strand and '-' for a member
// stored as the reverse complement of its dereplicated sequence.
package cluster

import (
	"github.com/grailbio/radclust/encoding/fasta"
)

// Orientation tags a read within a cluster.
type Orientation byte

const (
	// Seed marks the read a cluster is built around.
	Seed Orientation = '*'
	// Forward marks a member that matched the seed on the same strand.
	Forward Orientation = '+'
	// Reverse marks a member that matched the seed on the opposite
	// strand; its sequence is stored reverse-complemented.
	Reverse Orientation = '-'
)

// Read is one record of a cluster. Name is the dereplicated name,
// including its size annotation, without the orientation suffix.
type Read struct {
	Name   string
	Seq    string
	Orient Orientation
}

// Label returns the name line of the read without the leading '>'.
func (r Read) Label() string {
	if r.Orient == 0 {
		return r.Name
	}
	return r.Name + string(r.Orient)
}

// Size returns the abundance of the read parsed from its name.
func (r Read) Size() (int, error) {
	return fasta.Size(r.Name)
}

// Cluster is a seed and the members that hit it.
type Cluster struct {
	Seed    Read
	Members []Read
	// Rejected holds members dropped because the group exceeded the
	// gap threshold. They are never serialized.
	Rejected []Read
}

// Len returns the number of serialized reads in c.
func (c *Cluster) Len() int {
	return 1 + len(c.Members)
}

// Reads returns the seed followed by the members.
func (c *Cluster) Reads() []Read {
	reads := make([]Read, 0, c.Len())
	reads = append(reads, c.Seed)
	return append(reads, c.Members...)
}

// Depth returns the summed abundance of the seed and its members.
func (c *Cluster) Depth() (int, error) {
	var depth int
	for _, r := range c.Reads() {
		n, err := r.Size()
		if err != nil {
			return 0, err
		}
		depth += n
	}
	return depth, nil
}

// ParseLabel splits a name line (without '>') into a name and an
// orientation. Labels without a recognized suffix are returned whole
// with a zero Orientation.
func ParseLabel(label string) (string, Orientation) {
	if n := len(label); n > 0 {
		switch o := Orientation(label[n-1]); o {
		case Seed, Forward, Reverse:
			return label[:n-1], o
		}
	}
	return label, 0
}
