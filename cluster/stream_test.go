package cluster

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	in := []Cluster{
		{
			Seed: Read{Name: "a;size=3;", Seq: "ACGTA", Orient: Seed},
			Members: []Read{
				{Name: "b;size=1;", Seq: "ACGTT", Orient: Forward},
				{Name: "c;size=2;", Seq: ReverseComp("TACGT"), Orient: Reverse},
			},
		},
		{Seed: Read{Name: "d;size=1;", Seq: "GGGG", Orient: Seed}},
	}
	var b bytes.Buffer
	require.NoError(t, Encode(&b, in))
	out, err := Decode(&b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "TACGT", ReverseComp(out[0].Members[1].Seq))
}

func TestScannerTolerance(t *testing.T) {
	const stream = `//
//
>a;size=3;*
AC-GT
>b;size=1;+
ACTGT

//
//
>d;size=1;*
GGGG
//
//
`
	out, err := Decode(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "AC-GT", out[0].Seed.Seq)
	assert.Equal(t, "d;size=1;", out[1].Seed.Name)
	assert.Empty(t, out[1].Members)
}

func TestScannerErrors(t *testing.T) {
	_, err := Decode(strings.NewReader(">a;size=1;*\n"))
	assert.Error(t, err)
	_, err = Decode(strings.NewReader("ACGT\n"))
	assert.Error(t, err)
}

func TestParseLabel(t *testing.T) {
	for _, test := range []struct {
		label  string
		name   string
		orient Orientation
	}{
		{"a;size=3;*", "a;size=3;", Seed},
		{"a;size=3;+", "a;size=3;", Forward},
		{"a;size=3;-", "a;size=3;", Reverse},
		{"a;size=3;", "a;size=3;", 0},
	} {
		name, orient := ParseLabel(test.label)
		assert.Equal(t, test.name, name)
		assert.Equal(t, test.orient, orient)
		assert.Equal(t, test.label, Read{Name: name, Orient: orient}.Label())
	}
}

func TestReverseComp(t *testing.T) {
	assert.Equal(t, "ACGT", ReverseComp("ACGT"))
	assert.Equal(t, "N-TTGCA", ReverseComp("TGCAA-N"))
	assert.Equal(t, "AAAAssssCGTT", ReverseComp("AACGssssTTTT"))
	assert.Equal(t, "", ReverseComp(""))
}

func TestChecksum(t *testing.T) {
	a := Cluster{
		Seed: Read{Name: "a;size=3;", Seq: "ACGTA", Orient: Seed},
		Members: []Read{
			{Name: "b;size=1;", Seq: "ACGTT", Orient: Forward},
			{Name: "c;size=2;", Seq: "ACGTC", Orient: Reverse},
		},
	}
	b := Cluster{Seed: Read{Name: "d;size=1;", Seq: "GGGG", Orient: Seed}}
	aligned := Cluster{
		Seed: Read{Name: "a;size=3;", Seq: "ACGTA-", Orient: Seed},
		Members: []Read{
			{Name: "c;size=2;", Seq: "ACG-TC", Orient: Reverse},
			{Name: "b;size=1;", Seq: "ACGTT-", Orient: Forward},
		},
	}
	s1 := Sum([]Cluster{a, b})
	s2 := Sum([]Cluster{b, aligned})
	assert.Equal(t, s1, s2)
	assert.Equal(t, 2, s1.Clusters)
	assert.Equal(t, 4, s1.Reads)

	var merged Checksum
	merged.Merge(Sum([]Cluster{b}))
	merged.Merge(Sum([]Cluster{a}))
	assert.Equal(t, s1, merged)
	assert.NotEqual(t, s1, Sum([]Cluster{a}))
}
