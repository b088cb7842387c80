package align

import (
	"bytes"
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/radclust/cluster"
	"github.com/grailbio/radclust/encoding/fasta"
	"github.com/grailbio/radclust/encoding/fastq"
	"github.com/grailbio/radclust/tool"
)

// Aligner aligns clusters by invoking the aligner program through a
// tool.Runner.
type Aligner struct {
	Opts   Opts
	Runner tool.Runner
}

// New returns an Aligner that runs the aligner with runner.
func New(opts Opts, runner tool.Runner) *Aligner {
	return &Aligner{Opts: opts, Runner: runner}
}

// AlignCluster returns the alignment of c. Singletons are returned
// unchanged. If every read of c holds the pair separator, the two halves
// are aligned separately and rejoined with the separator.
func (a *Aligner) AlignCluster(ctx context.Context, c *cluster.Cluster) (cluster.Cluster, error) {
	if len(c.Members) == 0 {
		return cluster.Cluster{Seed: c.Seed}, nil
	}
	reads := c.Reads()
	paired := true
	for _, r := range reads {
		paired = paired && strings.Contains(r.Seq, fastq.Sep)
	}
	if a.Opts.MaxMembers > 0 && len(reads) > a.Opts.MaxMembers {
		reads = reads[:a.Opts.MaxMembers]
	}
	recs := make([]fasta.Record, len(reads))
	for i, r := range reads {
		recs[i] = fasta.Record{Name: r.Label(), Seq: r.Seq}
	}

	var aligned []fasta.Record
	if paired {
		first := make([]fasta.Record, len(recs))
		second := make([]fasta.Record, len(recs))
		for i, r := range recs {
			parts := strings.SplitN(r.Seq, fastq.Sep, 3)
			first[i] = fasta.Record{Name: r.Name, Seq: parts[0]}
			second[i] = fasta.Record{Name: r.Name, Seq: parts[1]}
		}
		a1, err := a.call(ctx, first)
		if err != nil {
			return cluster.Cluster{}, err
		}
		a2, err := a.call(ctx, second)
		if err != nil {
			return cluster.Cluster{}, err
		}
		aligned = make([]fasta.Record, len(a1))
		for i := range a1 {
			aligned[i] = fasta.Record{Name: a1[i].Name, Seq: a1[i].Seq + fastq.Sep + a2[i].Seq}
		}
	} else {
		var err error
		if aligned, err = a.call(ctx, recs); err != nil {
			return cluster.Cluster{}, err
		}
	}

	var out cluster.Cluster
	for i, r := range aligned {
		if gaps := strings.Count(strings.Trim(r.Seq, "-"), "-"); gaps > a.Opts.MaxInternalGaps {
			log.Printf("high indels: %s (%d internal gaps) %s", r.Name, gaps, r.Seq)
		}
		read := cluster.Read{Name: reads[i].Name, Seq: r.Seq, Orient: reads[i].Orient}
		if i == 0 {
			out.Seed = read
		} else {
			out.Members = append(out.Members, read)
		}
	}
	return out, nil
}

// call runs the aligner over recs and returns the aligned records in
// input order.
func (a *Aligner) call(ctx context.Context, recs []fasta.Record) ([]fasta.Record, error) {
	var in, out bytes.Buffer
	w := fasta.NewWriter(&in)
	for _, r := range Tag(recs) {
		if err := w.Write(r); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	if err := a.Runner.Run(ctx, tool.Cmd{Name: a.Opts.Muscle, Args: []string{"-quiet"}, Stdin: &in, Stdout: &out}); err != nil {
		return nil, err
	}
	aligned, err := fasta.ReadAll(&out)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parse aligner output", err)
	}
	aligned, err = Untag(aligned, len(recs))
	if err != nil {
		return nil, err
	}
	for i := range aligned {
		if aligned[i].Name != recs[i].Name {
			return nil, errors.E(errors.Invalid, "aligner renamed", recs[i].Name, "to", aligned[i].Name)
		}
	}
	return aligned, nil
}
