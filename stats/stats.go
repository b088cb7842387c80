// Package stats computes per-sample cluster depth statistics and writes
// the run-level clustering report.
package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/radclust/cluster"
)

// ReportName is the file name of the run-level report.
const ReportName = "s3_cluster_stats.txt"

// Depths returns the depth of each cluster in the stream read from r.
// The depth of a cluster is the summed size annotation of its reads.
func Depths(r io.Reader) ([]int, error) {
	var (
		s      = cluster.NewScanner(r)
		c      cluster.Cluster
		depths []int
	)
	for s.Scan(&c) {
		d, err := c.Depth()
		if err != nil {
			return nil, errors.E(errors.Invalid, err)
		}
		depths = append(depths, d)
	}
	return depths, s.Err()
}

// DepthsFile returns the cluster depths of the stream at path.
func DepthsFile(ctx context.Context, path string) ([]int, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx) // nolint: errcheck
	var r io.Reader = f.Reader(ctx)
	if cr := compress.NewReaderPath(r, path); cr != nil {
		r = cr
	}
	depths, err := Depths(r)
	if err != nil {
		return nil, errors.E(path, err)
	}
	return depths, nil
}

// Summary is one sample's row of the report.
type Summary struct {
	Sample          string  `tsv:"sample"`
	Reads           int     `tsv:"reads_filtered"`
	ClustersTotal   int     `tsv:"clusters_total"`
	ClustersHiDepth int     `tsv:"clusters_hidepth"`
	MeanDepth       float64 `tsv:"avg_depth_total"`
	MeanMajrule     float64 `tsv:"avg_depth_mj"`
	MeanStatistical float64 `tsv:"avg_depth_stat"`
	MergedReads     int     `tsv:"reads_merged"`
	MappedReads     int     `tsv:"refseq_mapped_reads"`
	UnmappedReads   int     `tsv:"refseq_unmapped_reads"`
}

// Summarize computes the depth statistics of a sample. Clusters with
// depth at least majrule (resp. statistical) count towards the
// majority-rule (resp. statistical) figures; ClustersHiDepth is the
// larger of the two counts. Means over no clusters are NaN.
func Summarize(sample string, reads int, depths []int, majrule, statistical int) Summary {
	mean := func(min int) (float64, int) {
		var sum, n int
		for _, d := range depths {
			if d >= min {
				sum += d
				n++
			}
		}
		if n == 0 {
			return math.NaN(), 0
		}
		return float64(sum) / float64(n), n
	}
	s := Summary{Sample: sample, Reads: reads, ClustersTotal: len(depths)}
	s.MeanDepth, _ = mean(math.MinInt32)
	var nmj, nstat int
	s.MeanMajrule, nmj = mean(majrule)
	s.MeanStatistical, nstat = mean(statistical)
	s.ClustersHiDepth = nmj
	if nstat > nmj {
		s.ClustersHiDepth = nstat
	}
	return s
}

func formatFloat(width int, v float64) string {
	if math.IsNaN(v) {
		return fmt.Sprintf("%*s", width, "nan")
	}
	return fmt.Sprintf("%*.2f", width, v)
}

// Header is the first line of the report.
var Header = fmt.Sprintf("%-20s   %9s   %9s   %9s   %9s   %9s   %9s\n",
	"sample", "N_reads", "clusts_tot", "clusts_hidepth", "avg.depth.tot", "avg.depth>mj", "avg.depth>stat")

// Format returns the report line of s.
func (s Summary) Format() string {
	return fmt.Sprintf("%-20s   %9d   %10d   %11d   %s   %s   %s\n",
		s.Sample, s.Reads, s.ClustersTotal, s.ClustersHiDepth,
		formatFloat(13, s.MeanDepth), formatFloat(11, s.MeanMajrule), formatFloat(13, s.MeanStatistical))
}

// Append appends the summaries, sorted by sample name, to the report at
// path. The header is written only when the report does not exist yet.
func Append(ctx context.Context, path string, summaries []Summary) error {
	var b bytes.Buffer
	if _, err := file.Stat(ctx, path); err != nil {
		b.WriteString(Header)
	} else {
		old, err := file.ReadFile(ctx, path)
		if err != nil {
			return err
		}
		b.Write(old)
	}
	sorted := append([]Summary(nil), summaries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sample < sorted[j].Sample })
	for _, s := range sorted {
		b.WriteString(s.Format())
	}
	return file.WriteFile(ctx, path, b.Bytes())
}

// TSVName is the file name of the tab-separated copy of the report.
const TSVName = "s3_cluster_stats.tsv"

var tsvHeader = []string{
	"sample", "reads_filtered", "clusters_total", "clusters_hidepth",
	"avg_depth_total", "avg_depth_mj", "avg_depth_stat",
	"reads_merged", "refseq_mapped_reads", "refseq_unmapped_reads",
}

// WriteTSV writes the summaries with a header row to w.
func WriteTSV(w io.Writer, summaries []Summary) error {
	tw := tsv.NewWriter(w)
	for _, col := range tsvHeader {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for _, s := range summaries {
		tw.WriteString(s.Sample)
		tw.WriteInt64(int64(s.Reads))
		tw.WriteInt64(int64(s.ClustersTotal))
		tw.WriteInt64(int64(s.ClustersHiDepth))
		tw.WriteFloat64(s.MeanDepth, 'g', -1)
		tw.WriteFloat64(s.MeanMajrule, 'g', -1)
		tw.WriteFloat64(s.MeanStatistical, 'g', -1)
		tw.WriteInt64(int64(s.MergedReads))
		tw.WriteInt64(int64(s.MappedReads))
		tw.WriteInt64(int64(s.UnmappedReads))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// ReadTSV reads summaries written by WriteTSV.
func ReadTSV(r io.Reader) ([]Summary, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	var summaries []Summary
	for {
		var s Summary
		if err := tr.Read(&s); err != nil {
			if err == io.EOF {
				return summaries, nil
			}
			return nil, errors.E(errors.Invalid, err)
		}
		summaries = append(summaries, s)
	}
}

// AppendTSV adds the summaries to the TSV report at path. Rows of
// samples already in the report are replaced in place; new samples are
// appended sorted by name.
func AppendTSV(ctx context.Context, path string, summaries []Summary) error {
	var rows []Summary
	if _, err := file.Stat(ctx, path); err == nil {
		data, err := file.ReadFile(ctx, path)
		if err != nil {
			return err
		}
		if rows, err = ReadTSV(bytes.NewReader(data)); err != nil {
			return errors.E(path, err)
		}
	}
	index := map[string]int{}
	for i, s := range rows {
		index[s.Sample] = i
	}
	sorted := append([]Summary(nil), summaries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sample < sorted[j].Sample })
	for _, s := range sorted {
		if i, ok := index[s.Sample]; ok {
			rows[i] = s
			continue
		}
		index[s.Sample] = len(rows)
		rows = append(rows, s)
	}
	var b bytes.Buffer
	if err := WriteTSV(&b, rows); err != nil {
		return err
	}
	return file.WriteFile(ctx, path, b.Bytes())
}
