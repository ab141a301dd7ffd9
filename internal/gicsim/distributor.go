package gicsim

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/hv"
)

// iidrARM is the implementer ID reported by the model (ARM, product 0x43B).
const iidrARM = 0x0200043B

// distributor models the GICD frame. State is guarded by Machine.mu.
type distributor struct {
	m    *Machine
	base uint64

	ctlr    uint32
	rwpLeft int

	group   []uint32
	enabled []uint32
	pending []uint32
	active  []uint32
	cfgr    []uint32
	router  []uint64
}

func newDistributor(m *Machine, base uint64) *distributor {
	d := &distributor{m: m, base: base}
	d.reset()
	return d
}

func (d *distributor) reset() {
	words := d.m.params.Lines / 32
	d.ctlr = 0
	d.rwpLeft = 0
	d.group = make([]uint32, words)
	d.enabled = make([]uint32, words)
	d.pending = make([]uint32, words)
	d.active = make([]uint32, words)
	d.cfgr = make([]uint32, words*2)
	d.router = make([]uint64, d.m.params.Lines)
}

func (d *distributor) Reset() error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	d.reset()
	return nil
}

func (d *distributor) MMIORegions() []hv.MMIORegion {
	return []hv.MMIORegion{{Address: d.base, Size: regs.DistributorSize}}
}

func (d *distributor) typer() uint32 {
	itLines := d.m.params.Lines/32 - 1
	cpuNum := uint32(d.m.topo.NumCPUs() - 1)
	if cpuNum > regs.GICDTyperCPUMask {
		cpuNum = regs.GICDTyperCPUMask
	}
	// SecurityExtn=1
	return itLines | cpuNum<<regs.GICDTyperCPUShift | 1<<10
}

func (d *distributor) armRWP() {
	d.rwpLeft = d.m.params.RWPLatency
}

// checkWidth allows 64-bit accesses only to the IROUTER array.
func (d *distributor) checkWidth(off uint64, n int) error {
	router := off >= regs.GICDIrouter && off < regs.GICDIrouter+uint64(len(d.router))*8
	if n == 4 || (n == 8 && router && off%8 == 0) {
		return nil
	}
	return fmt.Errorf("gicsim: gicd offset %#x: %w (%d bytes)", off, hv.ErrAccessLen, n)
}

func (d *distributor) ReadMMIO(addr uint64, data []byte) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	off := addr - d.base
	if err := d.checkWidth(off, len(data)); err != nil {
		return err
	}
	if off >= regs.GICDIrouter && off < regs.GICDIrouter+uint64(len(d.router))*8 {
		idx := (off - regs.GICDIrouter) / 8
		v := d.router[idx]
		if (off-regs.GICDIrouter)%8 == 4 {
			v >>= 32
		}
		hv.PutLE(data, v)
		return nil
	}

	var value uint32
	switch {
	case off == regs.GICDCtlr:
		value = d.ctlr
		if d.rwpLeft != 0 {
			value |= regs.GICDCtlrRWP
			if d.rwpLeft > 0 {
				d.rwpLeft--
			}
		}
	case off == regs.GICDTyper:
		value = d.typer()
	case off == regs.GICDIidr:
		value = iidrARM
	case off == regs.GICDPidr2:
		value = d.m.params.ArchRev << regs.PIDR2ArchRevShift
	default:
		if bank, idx, ok := d.bitmap(off); ok {
			value = bank[idx]
		} else if off >= regs.GICDIcfgr && off < regs.GICDIcfgr+uint64(len(d.cfgr))*4 {
			value = d.cfgr[(off-regs.GICDIcfgr)/4]
		}
	}
	hv.PutLE(data, uint64(value))
	return nil
}

func (d *distributor) WriteMMIO(addr uint64, data []byte) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	off := addr - d.base
	if err := d.checkWidth(off, len(data)); err != nil {
		return err
	}
	if off >= regs.GICDIrouter && off < regs.GICDIrouter+uint64(len(d.router))*8 {
		idx := (off - regs.GICDIrouter) / 8
		v := hv.ReadLE(data)
		switch {
		case len(data) == 8:
			d.router[idx] = v
		case (off-regs.GICDIrouter)%8 == 4:
			d.router[idx] = d.router[idx]&0xFFFFFFFF | v<<32
		default:
			d.router[idx] = d.router[idx]&^0xFFFFFFFF | v&0xFFFFFFFF
		}
		return nil
	}

	value := uint32(hv.ReadLE(data))
	words := uint64(len(d.enabled)) * 4
	switch {
	case off == regs.GICDCtlr:
		d.ctlr = value &^ regs.GICDCtlrRWP
		d.armRWP()
	// Word 0 holds SGIs and PPIs, which live in the redistributors once
	// affinity routing is on.
	case off >= regs.GICDIgroupr && off < regs.GICDIgroupr+words:
		d.group[(off-regs.GICDIgroupr)/4] = value
	case off >= regs.GICDIsenabler && off < regs.GICDIsenabler+words:
		d.enabled[(off-regs.GICDIsenabler)/4] |= value
	case off >= regs.GICDIcenabler && off < regs.GICDIcenabler+words:
		d.enabled[(off-regs.GICDIcenabler)/4] &^= value
		d.armRWP()
	case off >= regs.GICDIspendr && off < regs.GICDIspendr+words:
		d.pending[(off-regs.GICDIspendr)/4] |= value
	case off >= regs.GICDIcpendr && off < regs.GICDIcpendr+words:
		d.pending[(off-regs.GICDIcpendr)/4] &^= value
	case off >= regs.GICDIsactiver && off < regs.GICDIsactiver+words:
		d.active[(off-regs.GICDIsactiver)/4] |= value
	case off >= regs.GICDIcactiver && off < regs.GICDIcactiver+words:
		d.active[(off-regs.GICDIcactiver)/4] &^= value
	case off >= regs.GICDIcfgr && off < regs.GICDIcfgr+uint64(len(d.cfgr))*4:
		d.cfgr[(off-regs.GICDIcfgr)/4] = value
	default:
		// Ignore writes to unhandled registers
	}
	return nil
}

// bitmap resolves a read of one of the set/clear bitmap banks.
func (d *distributor) bitmap(off uint64) ([]uint32, uint64, bool) {
	words := uint64(len(d.enabled)) * 4
	for _, b := range []struct {
		set, clear uint64
		bank       []uint32
	}{
		{regs.GICDIgroupr, regs.GICDIgroupr, d.group},
		{regs.GICDIsenabler, regs.GICDIcenabler, d.enabled},
		{regs.GICDIspendr, regs.GICDIcpendr, d.pending},
		{regs.GICDIsactiver, regs.GICDIcactiver, d.active},
	} {
		if off >= b.set && off < b.set+words {
			return b.bank, (off - b.set) / 4, true
		}
		if off >= b.clear && off < b.clear+words {
			return b.bank, (off - b.clear) / 4, true
		}
	}
	return nil, 0, false
}

// highestPending returns the lowest-numbered SPI that can be taken by the
// CPU at aff, or false when none is ready.
func (d *distributor) highestPending(aff uint64) (uint32, bool) {
	if d.ctlr&regs.GICDCtlrEnableGrp1NS == 0 {
		return 0, false
	}
	for w := 1; w < len(d.pending); w++ {
		ready := d.pending[w] & d.enabled[w] &^ d.active[w]
		for ready != 0 {
			bit := uint32(0)
			for ready&(1<<bit) == 0 {
				bit++
			}
			intid := uint32(w)*32 + bit
			r := d.router[intid]
			if r&regs.IRouterIRM != 0 || r&regs.IRouterAffinityMask == aff {
				return intid, true
			}
			ready &^= 1 << bit
		}
	}
	return 0, false
}

var _ hv.MemoryMappedIODevice = (*distributor)(nil)
