package scheduler

import (
	"github.com/grailbio/base/errors"
)

// State is the resumable progress marker of a sample.
type State int

const (
	// Unprocessed samples have edited reads and nothing else.
	Unprocessed State = iota
	// Mapped samples have had their reads mapped to the reference.
	Mapped
	// Dereplicated samples have a dereplicated read file.
	Dereplicated
	// Clustered samples have an unaligned cluster stream.
	Clustered
	// Aligned samples have an aligned cluster stream.
	Aligned
	// Complete samples have had their statistics recorded.
	Complete
)

var stateNames = [...]string{"unprocessed", "mapped", "dereplicated", "clustered", "aligned", "complete"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// ParseState parses the String form of a State.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, "unknown sample state", s)
}

// Stats holds per-sample counters filled in as a sample moves through
// the pipeline.
type Stats struct {
	// ReadsFiltered is the number of edited reads of the sample.
	ReadsFiltered int
	// ReadsMerged is the number of read pairs merged into one read.
	ReadsMerged int
	// MappedReads and UnmappedReads count the reads that did and did
	// not map to the reference.
	MappedReads, UnmappedReads int
	// ClustersTotal is the number of clusters.
	ClustersTotal int
	// ClustersHiDepth is the number of clusters deep enough for
	// consensus calling.
	ClustersHiDepth int
}

// SampleJob is the execution context of one sample. State is changed
// only by the Scheduler. While a phase runs, the Worker processing the
// sample has exclusive access to Stats.
type SampleJob struct {
	Name string
	// Edits are the sample's edited read files. Paired data list the
	// first-mate and second-mate files alternately.
	Edits []string
	State State
	Stats Stats
}
