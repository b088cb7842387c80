// Package pipeline connects the clustering stages of a RAD-seq assembly
// to the scheduler. It owns the run configuration, the layout of the
// working directories, and the Worker that drives the external tools
// for each sample.
package pipeline

import (
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/radclust/tool"
)

// DataType is the library preparation of the reads.
type DataType string

const (
	RAD       DataType = "rad"
	DDRAD     DataType = "ddrad"
	GBS       DataType = "gbs"
	PairDDRAD DataType = "pairddrad"
	PairGBS   DataType = "pairgbs"
	Merged    DataType = "merged"
)

var dataTypes = []DataType{RAD, DDRAD, GBS, PairDDRAD, PairGBS, Merged}

// Paired reports whether reads come as mate pairs.
func (d DataType) Paired() bool { return strings.Contains(string(d), "pair") }

// BothStrands reports whether reads are clustered on both strands.
func (d DataType) BothStrands() bool { return strings.Contains(string(d), "gbs") }

// Opts configures a clustering run.
type Opts struct {
	// ProjectDir is the working directory of the assembly.
	ProjectDir string
	// Name is the assembly name. Output directories are named after it.
	Name     string
	DataType DataType
	// ClustThreshold is the minimum identity for a read to join a
	// cluster seed.
	ClustThreshold float64
	// AssemblyMethod is "denovo" or "reference".
	AssemblyMethod string
	// ReferencePath is the reference sequence used by the "reference"
	// method.
	ReferencePath string

	// MaxLowQualBases is the total number of N bases allowed in a merged
	// read pair.
	MaxLowQualBases int
	// FilterMinTrimLen is the minimum length of a merged read pair.
	FilterMinTrimLen int
	// MaxIndelsLocus holds the internal gap limits of the first and
	// second read. Aligned reads above their sum are logged.
	MaxIndelsLocus [2]int
	// MinDepthMajrule and MinDepthStatistical are the depths at which a
	// cluster is usable for majority-rule and statistical base calls.
	MinDepthMajrule     int
	MinDepthStatistical int

	// ChunkSize is the number of clusters per alignment chunk.
	ChunkSize int
	// MaxAlignMembers caps the number of reads of a cluster that are
	// aligned.
	MaxAlignMembers int
	// MaxGapsInHit is the largest gap count of a clustering hit that is
	// accepted.
	MaxGapsInHit int
	// NoReverse disables reverse-complement clustering.
	NoReverse bool
	// Force re-runs every phase.
	Force bool
	// Engines is the number of compute engines.
	Engines int
	// NoCompressScratch stores alignment chunks uncompressed.
	NoCompressScratch bool

	Vsearch  string
	Muscle   string
	Smalt    string
	Samtools string
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{
	ProjectDir:          ".",
	Name:                "data",
	DataType:            RAD,
	ClustThreshold:      0.85,
	AssemblyMethod:      "denovo",
	MaxLowQualBases:     5,
	FilterMinTrimLen:    35,
	MaxIndelsLocus:      [2]int{8, 8},
	MinDepthMajrule:     6,
	MinDepthStatistical: 6,
	ChunkSize:           1000,
	MaxAlignMembers:     200,
	MaxGapsInHit:        6,
	Engines:             runtime.NumCPU(),
	Vsearch:             "vsearch",
	Muscle:              "muscle",
	Smalt:               "smalt",
	Samtools:            "samtools",
}

// Reference reports whether reads are mapped to a reference before
// clustering.
func (o *Opts) Reference() bool { return o.AssemblyMethod == "reference" }

// Validate checks o. Programs are resolved in env, or in the process
// environment if env is nil.
func (o *Opts) Validate(env map[string]string) error {
	var known bool
	for _, d := range dataTypes {
		if o.DataType == d {
			known = true
		}
	}
	if !known {
		return errors.E(errors.Invalid, "unknown datatype", string(o.DataType))
	}
	switch o.AssemblyMethod {
	case "denovo":
	case "reference":
		if o.ReferencePath == "" {
			return errors.E(errors.Invalid, "reference assembly needs a reference sequence")
		}
		if o.DataType.Paired() {
			return errors.E(errors.Invalid, "reference mapping of paired data is not supported")
		}
	default:
		return errors.E(errors.Invalid, "unknown assembly method", o.AssemblyMethod)
	}
	if o.ClustThreshold <= 0 || o.ClustThreshold > 1 {
		return errors.E(errors.Invalid, "clustering threshold must be in (0, 1]:", strconv.FormatFloat(o.ClustThreshold, 'f', -1, 64))
	}
	for _, v := range []struct {
		name string
		val  int
	}{
		{"chunk size", o.ChunkSize},
		{"max align members", o.MaxAlignMembers},
		{"engines", o.Engines},
	} {
		if v.val < 1 {
			return errors.E(errors.Invalid, v.name, "must be positive")
		}
	}
	if o.MaxGapsInHit < 0 || o.MaxLowQualBases < 0 {
		return errors.E(errors.Invalid, "negative limit")
	}
	if o.Name == "" {
		return errors.E(errors.Invalid, "empty assembly name")
	}
	progs := []string{o.Vsearch, o.Muscle}
	if o.Reference() {
		progs = append(progs, o.Smalt, o.Samtools)
	}
	for _, p := range progs {
		if _, err := tool.Look(env, p); err != nil {
			return errors.E(errors.NotExist, "program", p, err)
		}
	}
	return nil
}

// Dirs are the working directories of a run.
type Dirs struct {
	// Edits holds merged, concatenated and dereplicated reads.
	Edits string
	// Clusts holds clustering hits, cluster streams and reports.
	Clusts string
	// Refmap holds reference mapping output.
	Refmap string
}

// Dirs returns the working directories of o.
func (o *Opts) Dirs() Dirs {
	return Dirs{
		Edits:  filepath.Join(o.ProjectDir, o.Name+"_edits"),
		Clusts: filepath.Join(o.ProjectDir, o.Name+"_clust_"+strconv.FormatFloat(o.ClustThreshold, 'f', -1, 64)),
		Refmap: filepath.Join(o.ProjectDir, o.Name+"_refmapping"),
	}
}
