package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/gic/regs"
)

// TriggerMode selects edge or level sensitivity.
type TriggerMode int

const (
	TriggerEdge TriggerMode = iota
	TriggerLevel
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerEdge:
		return "edge"
	case TriggerLevel:
		return "level"
	default:
		return fmt.Sprintf("TriggerMode(%d)", int(m))
	}
}

// Polarity selects the asserted level of an interrupt line.
type Polarity int

const (
	PolarityActiveHigh Polarity = iota
	PolarityActiveLow
)

func (p Polarity) String() string {
	switch p {
	case PolarityActiveHigh:
		return "active-high"
	case PolarityActiveLow:
		return "active-low"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// BaseVector is the first vector that is not reserved for SGIs.
func (d *Driver) BaseVector() uint32 { return regs.PPIBase }

// MaxVector is the number of interrupt IDs the distributor implements.
// It is zero before GlobalInit.
func (d *Driver) MaxVector() uint32 { return uint32(d.maxVectors.Load()) }

// IsValid reports whether vector is implemented by this controller.
func (d *Driver) IsValid(vector uint32) bool { return vector < d.MaxVector() }

// Remap is the identity on GICv3.
func (d *Driver) Remap(vector uint32) uint32 { return vector }

// Mask disables delivery of vector. Vectors below 32 are banked per CPU and
// are disabled in every online CPU's redistributor.
func (d *Driver) Mask(vector uint32) error {
	return d.setEnable(vector, false)
}

// Unmask enables delivery of vector, on every online CPU for vectors below 32.
func (d *Driver) Unmask(vector uint32) error {
	return d.setEnable(vector, true)
}

func (d *Driver) setEnable(vector uint32, enable bool) error {
	if !d.IsValid(vector) {
		return fmt.Errorf("%w: vector %d (max %d)", ErrInvalidArgument, vector, d.MaxVector())
	}
	bit := regs.Bit32(vector)
	if vector < regs.SPIBase {
		reg := uint64(regs.GICRIcenabler0)
		if enable {
			reg = regs.GICRIsenabler0
		}
		d.eachOnline(func(cpu int) {
			d.bus.Write32(d.redist(cpu)+reg, bit)
			d.waitRedistributorRWP(cpu)
		})
		return nil
	}
	reg := uint64(regs.GICDIcenabler)
	if enable {
		reg = regs.GICDIsenabler
	}
	d.bus.Write32(d.gicd+reg+regs.Word32(vector), bit)
	d.waitDistributorRWP()
	return nil
}

// Deactivate clears the active bit of vector in the distributor. It is a
// no-op when the vector is not active. SGIs and PPIs are active per CPU and
// their distributor bits are reserved under affinity routing, so the CPU
// that took one completes it with DeactivateOn.
func (d *Driver) Deactivate(vector uint32) error {
	if !d.IsValid(vector) {
		return fmt.Errorf("%w: vector %d (max %d)", ErrInvalidArgument, vector, d.MaxVector())
	}
	d.bus.Write32(d.gicd+regs.GICDIcactiver+regs.Word32(vector), regs.Bit32(vector))
	return nil
}

// DeactivateOn clears the active state of vector as seen by cpu. For SGIs
// and PPIs only cpu's redistributor is touched; other CPUs' instances of the
// same vector stay active. SPIs are deactivated as by Deactivate.
func (d *Driver) DeactivateOn(cpu CPU, vector uint32) error {
	id, err := d.checkCPU(cpu)
	if err != nil {
		return err
	}
	if !d.IsValid(vector) {
		return fmt.Errorf("%w: vector %d (max %d)", ErrInvalidArgument, vector, d.MaxVector())
	}
	if vector >= regs.SPIBase {
		return d.Deactivate(vector)
	}
	d.bus.Write32(d.redist(id)+regs.GICRIcactiver0, regs.Bit32(vector))
	return nil
}

// Configure sets the trigger mode of a PPI or SPI and drops any pending
// state left from the previous mode. Only active-high lines are supported.
func (d *Driver) Configure(vector uint32, mode TriggerMode, pol Polarity) error {
	if vector < regs.PPIBase || !d.IsValid(vector) {
		return fmt.Errorf("%w: vector %d not configurable", ErrInvalidArgument, vector)
	}
	if mode != TriggerEdge && mode != TriggerLevel {
		return fmt.Errorf("%w: trigger mode %s", ErrInvalidArgument, mode)
	}
	if pol != PolarityActiveHigh {
		return fmt.Errorf("%w: polarity %s", ErrNotSupported, pol)
	}

	edge := regs.EdgeBit16(vector)
	apply := func(cfgr, pend uint64) {
		v := d.bus.Read32(cfgr)
		if mode == TriggerEdge {
			v |= edge
		} else {
			v &^= edge
		}
		d.bus.Write32(cfgr, v)
		d.bus.Write32(pend, regs.Bit32(vector))
	}

	if vector < regs.SPIBase {
		d.eachOnline(func(cpu int) {
			rd := d.redist(cpu)
			apply(rd+regs.GICRIcfgr1, rd+regs.GICRIcpendr0)
		})
		return nil
	}
	apply(d.gicd+regs.GICDIcfgr+regs.Word16(vector), d.gicd+regs.GICDIcpendr+regs.Word32(vector))
	return nil
}

// InterruptConfig reports the configuration of vector. Every line in this
// system is edge triggered and active high, so hardware is not consulted.
func (d *Driver) InterruptConfig(vector uint32) (TriggerMode, Polarity, error) {
	if !d.IsValid(vector) {
		return 0, 0, fmt.Errorf("%w: vector %d (max %d)", ErrInvalidArgument, vector, d.MaxVector())
	}
	return TriggerEdge, PolarityActiveHigh, nil
}

// eachOnline calls fn for every online CPU in increasing order.
func (d *Driver) eachOnline(fn func(cpu int)) {
	online := d.online.Load()
	for cpu := range d.topo.NumCPUs() {
		if online&(1<<uint(cpu)) != 0 {
			fn(cpu)
		}
	}
}
