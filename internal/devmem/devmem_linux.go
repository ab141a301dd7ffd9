//go:build linux

package devmem

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/tinyrange/gicv3/internal/hv"
	"golang.org/x/sys/unix"
)

// Bus performs naturally aligned 32- and 64-bit loads and stores on mapped
// physical frames. Accesses outside every window panic, as a bus fault
// would.
type Bus struct {
	f        *os.File
	windows  []window
	writable bool
}

// Open maps each region of physical memory. Regions need not be page
// aligned.
func Open(regions []hv.MMIORegion, opts Options) (*Bus, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	flags, prot := os.O_RDONLY, unix.PROT_READ
	if opts.Writable {
		flags, prot = os.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flags|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("devmem: open %s: %w", path, err)
	}

	b := &Bus{f: f, writable: opts.Writable}
	page := uint64(os.Getpagesize())
	for _, r := range regions {
		if r.Size == 0 {
			continue
		}
		start := r.Address &^ (page - 1)
		length := (r.Address + r.Size - start + page - 1) &^ (page - 1)
		mem, err := unix.Mmap(int(f.Fd()), int64(start), int(length), prot, unix.MAP_SHARED)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("devmem: map %s: %w", r, err)
		}
		b.windows = append(b.windows, window{region: r, mem: mem, skip: r.Address - start})
	}
	return b, nil
}

// Close unmaps every window.
func (b *Bus) Close() error {
	var first error
	for _, w := range b.windows {
		if err := unix.Munmap(w.mem); err != nil && first == nil {
			first = fmt.Errorf("devmem: unmap %s: %w", w.region, err)
		}
	}
	b.windows = nil
	if err := b.f.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (b *Bus) ptr(addr uint64, size uint64) unsafe.Pointer {
	if addr%size != 0 {
		panic(fmt.Sprintf("devmem: unaligned %d-byte access at %#x", size, addr))
	}
	w := b.find(addr, size)
	return unsafe.Pointer(&w.mem[w.skip+addr-w.region.Address])
}

func (b *Bus) Read32(addr uint64) uint32 {
	return atomic.LoadUint32((*uint32)(b.ptr(addr, 4)))
}

func (b *Bus) Write32(addr uint64, value uint32) {
	b.storeAllowed(addr)
	atomic.StoreUint32((*uint32)(b.ptr(addr, 4)), value)
}

func (b *Bus) Read64(addr uint64) uint64 {
	return atomic.LoadUint64((*uint64)(b.ptr(addr, 8)))
}

func (b *Bus) Write64(addr uint64, value uint64) {
	b.storeAllowed(addr)
	atomic.StoreUint64((*uint64)(b.ptr(addr, 8)), value)
}
