package fasta

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestScanner(t *testing.T) {
	const in = `>1A_0;size=4;
TGCAG
AATCC
>1A_3;size=1;
TGCAGGTTAC

>1A_5;size=2;
`
	recs, err := ReadAll(strings.NewReader(in))
	assert.NoError(t, err)
	expect.EQ(t, recs, []Record{
		{"1A_0;size=4;", "TGCAGAATCC"},
		{"1A_3;size=1;", "TGCAGGTTAC"},
		{"1A_5;size=2;", ""},
	})
}

func TestScannerBareHeader(t *testing.T) {
	recs, err := ReadAll(strings.NewReader(">a\nAC\n>\nGT\n>b\nTT\n"))
	assert.NoError(t, err)
	expect.EQ(t, recs, []Record{{"a", "AC"}, {"", "GT"}, {"b", "TT"}})

	recs, err = ReadAll(strings.NewReader(">\nACGT\n"))
	assert.NoError(t, err)
	expect.EQ(t, recs, []Record{{"", "ACGT"}})
}

func TestScannerEmpty(t *testing.T) {
	recs, err := ReadAll(strings.NewReader(""))
	assert.NoError(t, err)
	expect.EQ(t, len(recs), 0)
}

func TestScannerBadHeader(t *testing.T) {
	_, err := ReadAll(strings.NewReader("ACGT\n>a\nACGT\n"))
	expect.True(t, err != nil)
}

func TestWriter(t *testing.T) {
	var b bytes.Buffer
	w := NewWriter(&b)
	assert.NoError(t, w.Write(Record{"a;size=2;", "ACGT"}))
	assert.NoError(t, w.Write(Record{"b;size=1;", "TTTT"}))
	assert.NoError(t, w.Flush())
	expect.EQ(t, b.String(), ">a;size=2;\nACGT\n>b;size=1;\nTTTT\n")
}

func TestSize(t *testing.T) {
	for _, test := range []struct {
		name string
		want int
		ok   bool
	}{
		{"1A_0;size=4;", 4, true},
		{"1A_0;size=12", 12, true},
		{"1A_0;size=3;*", 3, true},
		{"1A_0", 0, false},
		{"1A_0;size=0;", 0, false},
	} {
		n, err := Size(test.name)
		if test.ok {
			assert.NoError(t, err, test.name)
			expect.EQ(t, n, test.want, test.name)
		} else {
			expect.True(t, err != nil, test.name)
		}
	}
}
