package align

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/radclust/encoding/fasta"
)

// Tag appends ";<i>" to the name of the i'th record. The aligner does not
// preserve input order; Untag uses the suffix to restore it.
func Tag(recs []fasta.Record) []fasta.Record {
	tagged := make([]fasta.Record, len(recs))
	for i, r := range recs {
		tagged[i] = fasta.Record{Name: r.Name + ";" + strconv.Itoa(i), Seq: r.Seq}
	}
	return tagged
}

// Untag sorts records produced from Tag'ged input back into input order
// and strips the tags. It fails unless recs holds exactly one record for
// each of the n tags.
func Untag(recs []fasta.Record, n int) ([]fasta.Record, error) {
	if len(recs) != n {
		return nil, errors.E(errors.Invalid, "aligner returned", strconv.Itoa(len(recs)), "records, expected", strconv.Itoa(n))
	}
	out := make([]fasta.Record, n)
	seen := make([]bool, n)
	for _, r := range recs {
		i := strings.LastIndexByte(r.Name, ';')
		if i < 0 {
			return nil, errors.E(errors.Invalid, "untagged aligner record", r.Name)
		}
		idx, err := strconv.Atoi(r.Name[i+1:])
		if err != nil || idx < 0 || idx >= n || seen[idx] {
			return nil, errors.E(errors.Invalid, "bad tag in aligner record", r.Name)
		}
		seen[idx] = true
		out[idx] = fasta.Record{Name: r.Name[:i], Seq: r.Seq}
	}
	return out, nil
}
