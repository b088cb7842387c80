package cluster

import (
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/radclust/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDereps = []fasta.Record{
	{Name: "s_0;size=5;", Seq: "TGCAGAATCCAGTA"},
	{Name: "s_1;size=2;", Seq: "TGCAGAATCGAGTA"},
	{Name: "s_2;size=1;", Seq: "TACTCGATTCTGCA"},
}

func TestBuildOrientation(t *testing.T) {
	hits := []Hit{
		{Query: "s_1;size=2;", Target: "s_0;size=5;", Identity: 92.9, Gaps: 2, Strand: "+", Cov: 100},
		{Query: "s_2;size=1;", Target: "s_0;size=5;", Identity: 100, Gaps: 0, Strand: "-", Cov: 100},
	}
	clusters, err := Builder{MaxGaps: DefaultMaxGaps}.Build(testDereps, hits, nil)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Equal(t, Read{Name: "s_0;size=5;", Seq: "TGCAGAATCCAGTA", Orient: Seed}, c.Seed)
	require.Len(t, c.Members, 2)
	assert.Equal(t, Forward, c.Members[0].Orient)
	assert.Equal(t, "TGCAGAATCGAGTA", c.Members[0].Seq)
	assert.Equal(t, Reverse, c.Members[1].Orient)
	assert.Equal(t, ReverseComp(testDereps[2].Seq), c.Members[1].Seq)
	assert.Equal(t, testDereps[2].Seq, ReverseComp(c.Members[1].Seq))

	var b bytes.Buffer
	require.NoError(t, Encode(&b, clusters))
	assert.Equal(t, `>s_0;size=5;*
TGCAGAATCCAGTA
>s_1;size=2;+
TGCAGAATCGAGTA
>s_2;size=1;-
TGCAGAATCGAGTA
`, b.String())
}

func TestBuildRejectsGappyGroup(t *testing.T) {
	hits := []Hit{
		{Query: "s_1;size=2;", Target: "s_0;size=5;", Gaps: 1, Strand: "+"},
		{Query: "s_2;size=1;", Target: "s_0;size=5;", Gaps: 7, Strand: "+"},
	}
	clusters, err := Builder{MaxGaps: DefaultMaxGaps}.Build(testDereps, hits, nil)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "s_0;size=5;", clusters[0].Seed.Name)
	assert.Empty(t, clusters[0].Members)
	assert.Len(t, clusters[0].Rejected, 2)
	assert.Equal(t, 1, clusters[0].Len())
}

func TestBuildGapThresholdInclusive(t *testing.T) {
	hits := []Hit{{Query: "s_1;size=2;", Target: "s_0;size=5;", Gaps: 6, Strand: "+"}}
	clusters, err := Builder{MaxGaps: DefaultMaxGaps}.Build(testDereps, hits, nil)
	require.NoError(t, err)
	assert.Len(t, clusters[0].Members, 1)
}

func TestBuildSingletons(t *testing.T) {
	var dereps, nohits []fasta.Record
	const k = 5
	for i := 0; i < k; i++ {
		r := fasta.Record{Name: "u_" + string(rune('a'+i)) + ";size=1;", Seq: "ACGTACGT"}
		dereps = append(dereps, r)
		nohits = append(nohits, r)
	}
	dereps = append(dereps, testDereps...)
	// The seed of the one hit group is also a no-hit record.
	nohits = append(nohits, testDereps[0])
	hits := []Hit{{Query: "s_1;size=2;", Target: "s_0;size=5;", Strand: "+"}}

	clusters, err := Builder{MaxGaps: DefaultMaxGaps}.Build(dereps, hits, nohits)
	require.NoError(t, err)
	require.Len(t, clusters, k+1)
	var singletons int
	for _, c := range clusters {
		if len(c.Members) == 0 {
			singletons++
		}
	}
	assert.Equal(t, k, singletons)
	assert.Equal(t, "s_0;size=5;", clusters[0].Seed.Name)
}

func TestBuildGroupOrder(t *testing.T) {
	dereps := []fasta.Record{
		{Name: "a;size=3;", Seq: "A"}, {Name: "b;size=3;", Seq: "C"},
		{Name: "c;size=1;", Seq: "G"}, {Name: "d;size=1;", Seq: "T"},
		{Name: "e;size=1;", Seq: "A"},
	}
	hits := []Hit{
		{Query: "c;size=1;", Target: "b;size=3;", Strand: "+"},
		{Query: "d;size=1;", Target: "a;size=3;", Strand: "+"},
		{Query: "e;size=1;", Target: "b;size=3;", Strand: "+"},
	}
	for i := 0; i < 3; i++ {
		clusters, err := Builder{MaxGaps: DefaultMaxGaps}.Build(dereps, hits, nil)
		require.NoError(t, err)
		var seeds []string
		for _, c := range clusters {
			seeds = append(seeds, c.Seed.Name)
		}
		expect.That(t, seeds, h.ElementsAre("b;size=3;", "a;size=3;"))
		expect.EQ(t, clusters[0].Members[1].Name, "e;size=1;")
	}
}

func TestBuildUnknownRead(t *testing.T) {
	hits := []Hit{{Query: "zz;size=1;", Target: "s_0;size=5;", Strand: "+"}}
	_, err := Builder{MaxGaps: DefaultMaxGaps}.Build(testDereps, hits, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestBuildFile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	p := Paths{
		Derep:  filepath.Join(tmpdir, "s_derep.fastq"),
		Hits:   filepath.Join(tmpdir, "s.utemp"),
		NoHits: filepath.Join(tmpdir, "s.htemp"),
		Out:    filepath.Join(tmpdir, "s.clust.gz"),
	}
	b := Builder{MaxGaps: DefaultMaxGaps}
	err := b.BuildFile(ctx, "s", p)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotExist, err))
	assert.Contains(t, err.Error(), p.Hits)

	write := func(path, data string) {
		require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
	}
	write(p.Derep, ">s_0;size=5;\nTGCAGAATCCAGTA\n>s_1;size=2;\nTGCAGAATCGAGTA\n>s_2;size=1;\nTACTCGATTCTGCA\n>s_3;size=1;\nGGGGAAAATTTT\n")
	write(p.Hits, "s_1;size=2;\ts_0;size=5;\t92.9\t2\t+\t100.0\ns_2;size=1;\ts_0;size=5;\t100.0\t0\t-\t100.0\n")
	write(p.NoHits, ">s_0;size=5;\nTGCAGAATCCAGTA\n>s_3;size=1;\nGGGGAAAATTTT\n")
	require.NoError(t, b.BuildFile(ctx, "s", p))

	data, err := ioutil.ReadFile(p.Out)
	require.NoError(t, err)
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	raw, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "//\n//\n>s_3;size=1;*\nGGGGAAAATTTT\n"))

	clusters, err := ReadFile(ctx, p.Out)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, 3, clusters[0].Len())
	depth, err := clusters[0].Depth()
	require.NoError(t, err)
	assert.Equal(t, 8, depth)
}
