package cluster

import (
	"sort"
	"strings"

	"blainsmith.com/go/seahash"
)

// Checksum is an order-independent digest of a cluster stream. Two
// streams have equal checksums if they hold the same clusters, where a
// cluster is identified by its seed name and the set of its member
// names. Sequences are not hashed, so a stream and its alignment have
// the same checksum.
type Checksum struct {
	// Clusters is the number of clusters.
	Clusters int
	// Reads is the number of serialized reads.
	Reads int
	// SumSeeds is the sum of the hashes of the seed names.
	SumSeeds uint64
	// SumClusters is the sum of the hashes of each cluster's identity.
	SumClusters uint64
}

// Add adds c to the checksum.
func (s *Checksum) Add(c *Cluster) {
	names := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	s.Clusters++
	s.Reads += c.Len()
	s.SumSeeds += seahash.Sum64([]byte(c.Seed.Name))
	s.SumClusters += seahash.Sum64([]byte(c.Seed.Name + "\x00" + strings.Join(names, "\x00")))
}

// Merge adds the checksum o to s.
func (s *Checksum) Merge(o Checksum) {
	s.Clusters += o.Clusters
	s.Reads += o.Reads
	s.SumSeeds += o.SumSeeds
	s.SumClusters += o.SumClusters
}

// Sum returns the checksum of clusters.
func Sum(clusters []Cluster) Checksum {
	var s Checksum
	for i := range clusters {
		s.Add(&clusters[i])
	}
	return s
}
