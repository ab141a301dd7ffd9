package chipset

import (
	"fmt"
	"sort"

	"github.com/tinyrange/gicv3/internal/hv"
)

// Reset resets all registered devices.
func (c *Chipset) Reset() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Reset(); err != nil {
			return fmt.Errorf("chipset: reset device %q: %w", name, err)
		}
	}
	return nil
}

// HandleMMIO dispatches an MMIO access to the registered device.
func (c *Chipset) HandleMMIO(addr uint64, data []byte, isWrite bool) error {
	accessEnd := addr + uint64(len(data))
	if accessEnd < addr {
		return fmt.Errorf("chipset: MMIO access overflow at 0x%016x", addr)
	}

	for _, binding := range c.mmio {
		if binding.region.Contains(addr, uint64(len(data))) {
			if isWrite {
				return binding.handler.WriteMMIO(addr, data)
			}
			return binding.handler.ReadMMIO(addr, data)
		}
	}

	return fmt.Errorf("chipset: %w 0x%016x", hv.ErrUnmapped, addr)
}

// Regions returns every registered MMIO region in address order.
func (c *Chipset) Regions() []hv.MMIORegion {
	regions := make([]hv.MMIORegion, 0, len(c.mmio))
	for _, binding := range c.mmio {
		regions = append(regions, binding.region)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Address < regions[j].Address })
	return regions
}

func (c *Chipset) deviceNames() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
