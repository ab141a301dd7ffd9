package chipset

import (
	"github.com/tinyrange/gicv3/internal/hv"
)

// MmioHandler handles reads and writes to memory-mapped regions.
type MmioHandler interface {
	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}

// MmioIntercept describes the MMIO regions a device serves and the handler for them.
type MmioIntercept struct {
	Regions []hv.MMIORegion
	Handler MmioHandler
}

// LineInterrupt models an interrupt line that supports level and edge semantics.
type LineInterrupt interface {
	SetLevel(high bool)
	PulseInterrupt()
}

type noopLineInterrupt struct{}

func (noopLineInterrupt) SetLevel(bool)   {}
func (noopLineInterrupt) PulseInterrupt() {}

// LineInterruptDetached returns a LineInterrupt that drops all signals.
func LineInterruptDetached() LineInterrupt {
	return noopLineInterrupt{}
}

// LineInterruptFromFunc adapts a simple level function to LineInterrupt.
func LineInterruptFromFunc(fn func(bool)) LineInterrupt {
	return lineInterruptFunc(fn)
}

type lineInterruptFunc func(bool)

func (f lineInterruptFunc) SetLevel(level bool) {
	if f != nil {
		f(level)
	}
}

func (f lineInterruptFunc) PulseInterrupt() {
	if f != nil {
		f(true)
		f(false)
	}
}

// ChangeDeviceState exposes lifecycle hooks for chipset devices.
type ChangeDeviceState interface {
	Reset() error
}

// ChipsetDevice is the unified interface all chipset devices must implement.
type ChipsetDevice interface {
	ChangeDeviceState

	SupportsMmio() *MmioIntercept
}

// MmioDevice wraps a MemoryMappedIODevice so it can be registered without
// implementing the lifecycle hooks itself.
func MmioDevice(dev hv.MemoryMappedIODevice) ChipsetDevice {
	return mmioDevice{dev: dev}
}

type mmioDevice struct {
	dev hv.MemoryMappedIODevice
}

func (d mmioDevice) Reset() error {
	if r, ok := d.dev.(ChangeDeviceState); ok {
		return r.Reset()
	}
	return nil
}

func (d mmioDevice) SupportsMmio() *MmioIntercept {
	return &MmioIntercept{Regions: d.dev.MMIORegions(), Handler: d.dev}
}
