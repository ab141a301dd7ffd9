// Package devmem maps physical register frames through /dev/mem so the GIC
// driver can probe real hardware from userspace.
package devmem

import (
	"errors"
	"fmt"

	"github.com/tinyrange/gicv3/internal/hv"
)

var (
	// ErrUnsupported is returned on hosts without a /dev/mem style mapping.
	ErrUnsupported = errors.New("devmem: not supported on this platform")
	// ErrReadOnly rejects a store through a mapping opened without Writable.
	ErrReadOnly = errors.New("devmem: mapping is read-only")
)

// DefaultPath is the physical memory device on Linux.
const DefaultPath = "/dev/mem"

// Options controls how the frames are mapped.
type Options struct {
	// Path overrides DefaultPath. Tests point it at a regular file.
	Path string
	// Writable maps the frames read-write. Probing needs only loads.
	Writable bool
}

// window is one mapped physical range.
type window struct {
	region hv.MMIORegion
	mem    []byte
	// skip is the distance from the page-aligned mapping start to region.Address.
	skip uint64
}

func (b *Bus) find(addr uint64, size uint64) *window {
	for i := range b.windows {
		if b.windows[i].region.Contains(addr, size) {
			return &b.windows[i]
		}
	}
	panic(fmt.Sprintf("devmem: access of %d bytes at %#x outside mapped windows", size, addr))
}

func (b *Bus) storeAllowed(addr uint64) {
	if !b.writable {
		panic(fmt.Errorf("%w: store to %#x", ErrReadOnly, addr))
	}
}

// Regions returns the mapped physical ranges.
func (b *Bus) Regions() []hv.MMIORegion {
	out := make([]hv.MMIORegion, 0, len(b.windows))
	for _, w := range b.windows {
		out = append(out, w.region)
	}
	return out
}
