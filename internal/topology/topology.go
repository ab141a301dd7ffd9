// Package topology maps logical CPU numbers to their GIC affinity and back.
//
// Logical CPUs are numbered consecutively across clusters: with clusters
// [4, 2], CPUs 0-3 are cluster 0 cores 0-3 and CPUs 4-5 are cluster 1 cores
// 0-1.
package topology

import (
	"errors"
	"fmt"
)

// MaxCPUs bounds the logical CPU count so CPU sets fit in one word.
const MaxCPUs = 64

// MaxCoresPerCluster is the widest cluster an SGI target list can address.
const MaxCoresPerCluster = 16

var ErrUnknownCPU = errors.New("topology: unknown CPU")

// Affinity is a two-level (cluster, core) hardware address.
type Affinity struct {
	Cluster uint8 // Aff1
	Core    uint8 // Aff0
}

func (a Affinity) String() string { return fmt.Sprintf("%d.%d", a.Cluster, a.Core) }

// MPIDR returns the affinity fields as laid out in MPIDR_EL1.
func (a Affinity) MPIDR() uint64 { return uint64(a.Cluster)<<8 | uint64(a.Core) }

// IRouter returns the GICD_IROUTER value routing an SPI to exactly this core.
func (a Affinity) IRouter() uint64 { return a.MPIDR() }

// FromMPIDR extracts the two affinity levels from an MPIDR or IROUTER value.
func FromMPIDR(v uint64) Affinity {
	return Affinity{Cluster: uint8(v >> 8), Core: uint8(v)}
}

// Topology is an immutable description of the CPU clusters.
type Topology struct {
	clusters []int
	cpus     []Affinity
}

// New builds a topology from the number of cores in each cluster.
func New(clusters []int) (*Topology, error) {
	if len(clusters) == 0 {
		return nil, fmt.Errorf("topology: no clusters")
	}
	t := &Topology{clusters: append([]int(nil), clusters...)}
	for c, n := range clusters {
		if n <= 0 {
			return nil, fmt.Errorf("topology: cluster %d has %d cores", c, n)
		}
		if n > MaxCoresPerCluster {
			return nil, fmt.Errorf("topology: cluster %d has %d cores, at most %d supported", c, n, MaxCoresPerCluster)
		}
		if c > 0xFF {
			return nil, fmt.Errorf("topology: too many clusters (%d)", len(clusters))
		}
		for core := range n {
			t.cpus = append(t.cpus, Affinity{Cluster: uint8(c), Core: uint8(core)})
		}
	}
	if len(t.cpus) > MaxCPUs {
		return nil, fmt.Errorf("topology: %d CPUs exceeds maximum of %d", len(t.cpus), MaxCPUs)
	}
	return t, nil
}

// MustNew is New for static topologies; it panics on error.
func MustNew(clusters ...int) *Topology {
	t, err := New(clusters)
	if err != nil {
		panic(err)
	}
	return t
}

// NumCPUs returns the number of logical CPUs.
func (t *Topology) NumCPUs() int { return len(t.cpus) }

// NumClusters returns the number of clusters.
func (t *Topology) NumClusters() int { return len(t.clusters) }

// ClusterSize returns the number of cores in cluster c.
func (t *Topology) ClusterSize(c int) int {
	if c < 0 || c >= len(t.clusters) {
		return 0
	}
	return t.clusters[c]
}

// Affinity returns the hardware affinity of a logical CPU.
func (t *Topology) Affinity(cpu int) (Affinity, error) {
	if cpu < 0 || cpu >= len(t.cpus) {
		return Affinity{}, fmt.Errorf("%w: %d", ErrUnknownCPU, cpu)
	}
	return t.cpus[cpu], nil
}

// CPU returns the logical CPU number of an affinity.
func (t *Topology) CPU(a Affinity) (int, error) {
	c := int(a.Cluster)
	if c >= len(t.clusters) || int(a.Core) >= t.clusters[c] {
		return -1, fmt.Errorf("%w: affinity %s", ErrUnknownCPU, a)
	}
	cpu := 0
	for i := 0; i < c; i++ {
		cpu += t.clusters[i]
	}
	return cpu + int(a.Core), nil
}

// Clusters reports cluster sizes.
func (t *Topology) Clusters() []int { return append([]int(nil), t.clusters...) }
