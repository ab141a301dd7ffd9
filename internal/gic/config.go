package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/topology"
)

// Config is the platform-supplied description of the controller.
type Config struct {
	// Base is the physical base address of the GIC register block.
	Base uint64 `yaml:"base"`
	// DistributorOffset is the offset of the GICD frame from Base.
	DistributorOffset uint64 `yaml:"gicd_offset"`
	// RedistributorOffset is the offset of CPU 0's GICR frames from Base.
	RedistributorOffset uint64 `yaml:"gicr_offset"`
	// RedistributorStride is the distance between consecutive CPUs' GICR frames.
	RedistributorStride uint64 `yaml:"gicr_stride"`

	// ErratumWakeAddr is the physical address of the vendor wake-request
	// register for chips that cannot wake a powered-down core with an SGI.
	// Zero disables the workaround.
	ErratumWakeAddr uint64 `yaml:"erratum_wake_addr"`
	// ErratumWakeBit selects the wake-request bit within that register.
	ErratumWakeBit uint32 `yaml:"erratum_wake_bit"`

	// IPIBase is the first SGI used for inter-processor interrupts. The four
	// IPI kinds occupy IPIBase through IPIBase+3.
	IPIBase uint32 `yaml:"ipi_base"`

	// Optional lets discovery succeed without a controller, for platforms
	// that may be running a GICv2 instead.
	Optional bool `yaml:"optional"`

	// Clusters lists the number of cores in each cluster.
	Clusters []int `yaml:"clusters"`
}

// DefaultConfig mirrors the QEMU virt machine layout with a single
// four-core cluster.
func DefaultConfig() Config {
	return Config{
		Base:                0x08000000,
		DistributorOffset:   0x00000000,
		RedistributorOffset: 0x000a0000,
		RedistributorStride: regs.RedistributorFrameSize,
		Clusters:            []int{4},
	}
}

// Validate checks the configuration without touching hardware.
func (c Config) Validate() error {
	if c.Base == 0 {
		return fmt.Errorf("gicv3: config: missing base address")
	}
	if c.RedistributorStride < regs.RedistributorFrameSize {
		return fmt.Errorf("gicv3: config: redistributor stride %#x smaller than frame size %#x",
			c.RedistributorStride, regs.RedistributorFrameSize)
	}
	if c.IPIBase+uint32(numIPIKinds) > regs.PPIBase {
		return fmt.Errorf("gicv3: config: ipi base %d leaves no room for %d IPIs below %d",
			c.IPIBase, numIPIKinds, regs.PPIBase)
	}
	if c.ErratumWakeBit >= 32 {
		return fmt.Errorf("gicv3: config: erratum wake bit %d out of range", c.ErratumWakeBit)
	}
	if _, err := topology.New(c.Clusters); err != nil {
		return fmt.Errorf("gicv3: config: %w", err)
	}
	return nil
}

// DistributorBase is the physical address of the GICD frame.
func (c Config) DistributorBase() uint64 { return c.Base + c.DistributorOffset }

// RedistributorBase is the physical address of a CPU's GICR frames.
func (c Config) RedistributorBase(cpu int) uint64 {
	return c.Base + c.RedistributorOffset + uint64(cpu)*c.RedistributorStride
}
