//go:build !linux

package devmem

import "github.com/tinyrange/gicv3/internal/hv"

type Bus struct {
	windows  []window
	writable bool
}

func Open(regions []hv.MMIORegion, opts Options) (*Bus, error) {
	return nil, ErrUnsupported
}

func (b *Bus) Close() error { return nil }

func (b *Bus) Read32(addr uint64) uint32 {
	b.find(addr, 4)
	return 0
}

func (b *Bus) Write32(addr uint64, value uint32) {
	b.storeAllowed(addr)
	b.find(addr, 4)
}

func (b *Bus) Read64(addr uint64) uint64 {
	b.find(addr, 8)
	return 0
}

func (b *Bus) Write64(addr uint64, value uint64) {
	b.storeAllowed(addr)
	b.find(addr, 8)
}
