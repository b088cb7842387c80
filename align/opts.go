// Package align aligns the clusters of one or more samples with an
// external multiple-alignment program. Cluster streams are cut into
// bounded chunks, chunks from all samples are aligned in parallel, and
// each sample's chunks are reassembled in their original order.
package align

import "runtime"

// Opts controls chunked alignment.
type Opts struct {
	// ChunkSize is the maximum number of clusters in one chunk.
	ChunkSize int
	// MaxMembers is the maximum number of reads of a cluster passed to
	// the aligner. Reads past this cap are dropped from the output.
	MaxMembers int
	// MaxInternalGaps is the number of gap characters, ignoring leading
	// and trailing gaps, above which an aligned read is logged as having
	// high indels. Such reads are kept.
	MaxInternalGaps int
	// Parallelism is the number of chunks aligned concurrently.
	Parallelism int
	// Muscle is the aligner program.
	Muscle string
	// TmpDir is where chunk files are written. If empty, chunk files are
	// written next to each sample's output.
	TmpDir string
	// NoCompressTmpFiles, if false (default), compresses chunk files
	// using snappy.
	NoCompressTmpFiles bool
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	ChunkSize:       1000,
	MaxMembers:      200,
	MaxInternalGaps: 8,
	Parallelism:     runtime.NumCPU(),
	Muscle:          "muscle",
}
