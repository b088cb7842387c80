// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cluster

var revCompTable [256]byte

func init() {
	for i := range revCompTable {
		revCompTable[i] = byte(i)
	}
	for _, p := range [...][2]byte{{'A', 'T'}, {'C', 'G'}, {'a', 't'}, {'c', 'g'}} {
		revCompTable[p[0]], revCompTable[p[1]] = p[1], p[0]
	}
}

// ReverseComp returns the reverse complement of seq. A, C, G and T are
// complemented in either case; every other byte, including 'N', gaps
// and the pair separator, is kept as is.
func ReverseComp(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = revCompTable[seq[i]]
	}
	return string(out)
}
