package gic

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/hv"
)

// Bus performs physical memory accesses to the GIC register frames.
type Bus interface {
	Read32(addr uint64) uint32
	Write32(addr uint64, value uint32)
	Read64(addr uint64) uint64
	Write64(addr uint64, value uint64)
}

// CPU is the execution context of the calling processor. ICC system
// registers are only reachable from the CPU that owns them, so every
// per-CPU operation takes the CPU it is running on.
type CPU interface {
	// ID returns the logical CPU number.
	ID() int

	ReadSysReg(reg regs.SysReg) uint64
	WriteSysReg(reg regs.SysReg, value uint64)

	// ISB is an instruction synchronization barrier.
	ISB()
}

// DenyLister is the resource-protection layer that keeps user mode from
// mapping the controller's registers.
type DenyLister interface {
	DenyMMIO(region hv.MMIORegion) error
}

// CPUMask is a set of logical CPUs, bit n selecting CPU n.
type CPUMask uint64

// MaskOf returns the set holding the given CPUs.
func MaskOf(cpus ...int) CPUMask {
	var m CPUMask
	for _, cpu := range cpus {
		m |= 1 << uint(cpu)
	}
	return m
}

// Has reports whether cpu is in the set.
func (m CPUMask) Has(cpu int) bool { return cpu >= 0 && cpu < 64 && m&(1<<uint(cpu)) != 0 }

// Count returns the number of CPUs in the set.
func (m CPUMask) Count() int { return bits.OnesCount64(uint64(m)) }

func (m CPUMask) String() string {
	var parts []string
	for v := uint64(m); v != 0; v &= v - 1 {
		parts = append(parts, strconv.Itoa(bits.TrailingZeros64(v)))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
