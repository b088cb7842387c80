package stats

import (
	"bytes"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
)

const stream = `>a;size=5;*
ACGT
>b;size=2;+
ACGT
//
//
>c;size=1;*
ACGT
//
//
>d;size=7;*
ACGT
>e;size=3;-
ACGT
//
//
`

func TestDepths(t *testing.T) {
	depths, err := Depths(strings.NewReader(stream))
	assert.NoError(t, err)
	expect.That(t, depths, h.ElementsAre(7, 1, 10))

	_, err = Depths(strings.NewReader(">a*\nACGT\n"))
	expect.True(t, err != nil)
}

func TestSummarize(t *testing.T) {
	s := Summarize("1A", 100, []int{7, 1, 10}, 6, 8)
	expect.EQ(t, s.ClustersTotal, 3)
	expect.EQ(t, s.ClustersHiDepth, 2)
	expect.EQ(t, s.MeanDepth, 6.0)
	expect.EQ(t, s.MeanMajrule, 8.5)
	expect.EQ(t, s.MeanStatistical, 10.0)

	s = Summarize("1B", 0, nil, 6, 6)
	expect.EQ(t, s.ClustersTotal, 0)
	expect.True(t, math.IsNaN(s.MeanDepth))
}

func TestAppend(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	path := filepath.Join(tmpdir, ReportName)
	assert.NoError(t, Append(ctx, path, []Summary{
		Summarize("2B", 10, []int{1}, 6, 6),
		Summarize("1A", 100, []int{7, 1, 10}, 6, 8),
	}))
	assert.NoError(t, Append(ctx, path, []Summary{Summarize("3C", 5, []int{6}, 6, 6)}))

	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	expect.EQ(t, len(lines), 4)
	expect.EQ(t, lines[0], "sample                   N_reads   clusts_tot   clusts_hidepth   avg.depth.tot   avg.depth>mj   avg.depth>stat")
	expect.EQ(t, lines[1], "1A                           100            3             2            6.00          8.50           10.00")
	expect.EQ(t, lines[2], "2B                            10            1             0            1.00           nan             nan")
	expect.True(t, strings.HasPrefix(lines[3], "3C "))
}

func TestWriteTSV(t *testing.T) {
	var b bytes.Buffer
	assert.NoError(t, WriteTSV(&b, []Summary{{Sample: "1A", Reads: 3, ClustersTotal: 1}}))
	rows := strings.Split(b.String(), "\n")
	expect.True(t, strings.HasPrefix(rows[0], "sample\treads_filtered\tclusters_total"))
	expect.True(t, strings.HasPrefix(rows[1], "1A\t3\t1\t"))
}

func TestTSVRoundTrip(t *testing.T) {
	in := []Summary{
		Summarize("1A", 100, []int{7, 1, 10}, 6, 8),
		{Sample: "2B", Reads: 4, MergedReads: 1, MappedReads: 1, UnmappedReads: 3},
	}
	var b bytes.Buffer
	assert.NoError(t, WriteTSV(&b, in))
	out, err := ReadTSV(&b)
	assert.NoError(t, err)
	expect.EQ(t, len(out), 2)
	expect.EQ(t, out[0], in[0])
	expect.EQ(t, out[1].UnmappedReads, 3)
	expect.EQ(t, out[1].MergedReads, 1)
}

func TestAppendTSV(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	path := filepath.Join(tmpdir, TSVName)
	assert.NoError(t, AppendTSV(ctx, path, []Summary{
		Summarize("2B", 10, []int{1}, 6, 6),
		Summarize("1A", 100, []int{7}, 6, 6),
	}))
	// A later run adds a sample and redoes one.
	assert.NoError(t, AppendTSV(ctx, path, []Summary{
		Summarize("3C", 5, []int{6}, 6, 6),
		Summarize("2B", 20, []int{1, 1}, 6, 6),
	}))

	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	rows, err := ReadTSV(bytes.NewReader(data))
	assert.NoError(t, err)
	var names []string
	for _, r := range rows {
		names = append(names, r.Sample)
	}
	expect.That(t, names, h.ElementsAre("1A", "2B", "3C"))
	expect.EQ(t, rows[1].Reads, 20)
	expect.EQ(t, rows[1].ClustersTotal, 2)
}
