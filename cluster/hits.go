package cluster

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// Hit is one row of the clustering tool's user output, written with
// the fields query+target+id+gaps+qstrand+qcov.
type Hit struct {
	// Query is the dereplicated read that matched.
	Query string
	// Target is the seed the query was assigned to.
	Target string
	// Identity is the percent identity of the match.
	Identity float64
	// Gaps is the number of gap openings in the query/target alignment.
	Gaps int
	// Strand is "+" or "-".
	Strand string
	// Cov is the percent query coverage.
	Cov float64
}

// ReadHits reads hit records from r.
func ReadHits(r io.Reader) ([]Hit, error) {
	tr := tsv.NewReader(r)
	var hits []Hit
	for {
		var h Hit
		if err := tr.Read(&h); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, "read hits", err)
		}
		if h.Strand != "+" && h.Strand != "-" {
			return nil, errors.E(errors.Invalid, "hit", h.Query, "has bad strand", h.Strand)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// ReadHitsFile reads hit records from the file at path.
func ReadHitsFile(ctx context.Context, path string) ([]Hit, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	hits, err := ReadHits(f.Reader(ctx))
	if cerr := f.Close(ctx); err == nil {
		err = cerr
	}
	return hits, err
}
