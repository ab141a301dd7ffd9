// Package hv holds the physical address and MMIO device types shared by the
// driver, the platform model and the bus implementations.
package hv

import (
	"errors"
	"fmt"
)

var (
	ErrUnmapped  = errors.New("hv: access to unmapped physical address")
	ErrAccessLen = errors.New("hv: unsupported access width")
)

// MMIORegion is a physical address range.
type MMIORegion struct {
	Address uint64
	Size    uint64
}

// End returns the first address past the region.
func (r MMIORegion) End() uint64 { return r.Address + r.Size }

// Contains reports whether [addr, addr+n) lies inside the region.
func (r MMIORegion) Contains(addr uint64, n uint64) bool {
	return addr >= r.Address && addr+n <= r.End() && addr+n >= addr
}

// Overlaps reports whether two regions share any address.
func (r MMIORegion) Overlaps(o MMIORegion) bool {
	return r.Address < o.End() && o.Address < r.End()
}

func (r MMIORegion) String() string {
	return fmt.Sprintf("[%#x-%#x)", r.Address, r.End())
}

type MemoryMappedIODevice interface {
	MMIORegions() []MMIORegion

	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}
