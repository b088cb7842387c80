package cluster

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/radclust/encoding/fasta"
	"github.com/klauspost/compress/gzip"
)

// DefaultMaxGaps is the largest per-member gap count a hit group may
// carry before all of its members are rejected.
const DefaultMaxGaps = 6

// Builder assembles clusters from dereplicated reads and hit records.
type Builder struct {
	// MaxGaps is the gap-count threshold. A group is rejected if any of
	// its hits has more than MaxGaps gaps.
	MaxGaps int
}

// Build groups hits by seed and returns one cluster per seed.
//
// Groups are emitted in the order their seed first appears as a hit
// target. Seeds from nohits that are not the target of any hit
// follow as singletons, in nohits order. Member sequences come from
// dereps; reverse-strand members are reverse-complemented.
func (b Builder) Build(dereps []fasta.Record, hits []Hit, nohits []fasta.Record) ([]Cluster, error) {
	seqs := make(map[string]string, len(dereps))
	for _, r := range dereps {
		seqs[r.Name] = r.Seq
	}
	lookup := func(name string) (string, error) {
		seq, ok := seqs[name]
		if !ok {
			return "", errors.E(errors.Invalid, "read", name, "is not in the dereplicated input")
		}
		return seq, nil
	}

	var (
		order  []string
		groups = make(map[string][]Hit)
	)
	for _, h := range hits {
		if _, ok := groups[h.Target]; !ok {
			order = append(order, h.Target)
		}
		groups[h.Target] = append(groups[h.Target], h)
	}

	clusters := make([]Cluster, 0, len(order)+len(nohits))
	for _, seed := range order {
		seq, err := lookup(seed)
		if err != nil {
			return nil, err
		}
		c := Cluster{Seed: Read{Name: seed, Seq: seq, Orient: Seed}}
		group := groups[seed]
		reject := false
		for _, h := range group {
			if h.Gaps > b.MaxGaps {
				reject = true
				break
			}
		}
		for _, h := range group {
			seq, err := lookup(h.Query)
			if err != nil {
				return nil, err
			}
			m := Read{Name: h.Query, Seq: seq, Orient: Forward}
			if h.Strand == "-" {
				m.Seq, m.Orient = ReverseComp(seq), Reverse
			}
			if reject {
				c.Rejected = append(c.Rejected, m)
			} else {
				c.Members = append(c.Members, m)
			}
		}
		clusters = append(clusters, c)
	}
	for _, r := range nohits {
		if _, ok := groups[r.Name]; ok {
			continue
		}
		seq, ok := seqs[r.Name]
		if !ok {
			seq = r.Seq
		}
		clusters = append(clusters, Cluster{Seed: Read{Name: r.Name, Seq: seq, Orient: Seed}})
	}
	return clusters, nil
}

// Paths names the per-sample files consumed and produced by BuildFile.
type Paths struct {
	// Derep is the size-annotated dereplicated FASTA file.
	Derep string
	// Hits is the clustering tool's user output.
	Hits string
	// NoHits is the FASTA file of reads that matched no seed.
	NoHits string
	// Out is the gzipped cluster stream to write.
	Out string
}

// BuildFile builds the clusters of one sample from files and writes them
// gzip-compressed to p.Out. A missing hit file is reported before any
// file is read.
func (b Builder) BuildFile(ctx context.Context, sample string, p Paths) error {
	for _, path := range []string{p.Hits, p.NoHits, p.Derep} {
		if _, err := file.Stat(ctx, path); err != nil {
			return errors.E(errors.NotExist, "sample", sample, "missing clustering input", path, err)
		}
	}
	dereps, err := readFASTA(ctx, p.Derep)
	if err != nil {
		return err
	}
	hits, err := ReadHitsFile(ctx, p.Hits)
	if err != nil {
		return errors.E(p.Hits, err)
	}
	nohits, err := readFASTA(ctx, p.NoHits)
	if err != nil {
		return err
	}
	clusters, err := b.Build(dereps, hits, nohits)
	if err != nil {
		return errors.E("sample", sample, err)
	}
	var rejected int
	for _, c := range clusters {
		if len(c.Rejected) > 0 {
			rejected++
		}
	}
	log.Printf("%s: built %d clusters from %d reads (%d hits, %d groups rejected)",
		sample, len(clusters), len(dereps), len(hits), rejected)
	return writeGzip(ctx, p.Out, func(w io.Writer) error {
		return Encode(w, clusters)
	})
}

func readFASTA(ctx context.Context, path string) ([]fasta.Record, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	recs, err := fasta.ReadAll(f.Reader(ctx))
	if cerr := f.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.E(path, err)
	}
	return recs, nil
}

func writeGzip(ctx context.Context, path string, fn func(w io.Writer) error) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	var e errors.Once
	gz := gzip.NewWriter(out.Writer(ctx))
	e.Set(fn(gz))
	e.Set(gz.Close())
	e.Set(out.Close(ctx))
	return e.Err()
}
