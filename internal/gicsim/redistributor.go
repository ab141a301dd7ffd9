package gicsim

import (
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/hv"
	"github.com/tinyrange/gicv3/internal/topology"
)

// sgiCfgr is the fixed ICFGR0 value: SGIs are always edge triggered.
const sgiCfgr = 0xAAAAAAAA

// redistributor models one CPU's RD_base and SGI_base frames. State is
// guarded by Machine.mu.
type redistributor struct {
	m    *Machine
	cpu  int
	aff  topology.Affinity
	base uint64

	rwpLeft int
	waker   uint32

	group   uint32
	enabled uint32
	pending uint32
	active  uint32
	cfgr1   uint32
}

func newRedistributor(m *Machine, cpu int, aff topology.Affinity, base uint64) *redistributor {
	r := &redistributor{m: m, cpu: cpu, aff: aff, base: base}
	r.reset()
	return r
}

func (r *redistributor) reset() {
	*r = redistributor{m: r.m, cpu: r.cpu, aff: r.aff, base: r.base}
	if r.m.params.Asleep {
		r.waker = regs.GICRWakerProcessorSleep | regs.GICRWakerChildrenAsleep
	}
}

func (r *redistributor) Reset() error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.reset()
	return nil
}

func (r *redistributor) MMIORegions() []hv.MMIORegion {
	return []hv.MMIORegion{{Address: r.base, Size: regs.RedistributorFrameSize}}
}

func (r *redistributor) typer() uint64 {
	v := uint64(r.cpu)<<regs.GICRTyperProcNumShift | r.aff.MPIDR()<<regs.GICRTyperAffinityShift
	if r.cpu == r.m.topo.NumCPUs()-1 {
		v |= regs.GICRTyperLast
	}
	return v
}

func (r *redistributor) ReadMMIO(addr uint64, data []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	off := addr - r.base
	var value uint64
	switch off {
	case regs.GICRCtlr:
		if r.rwpLeft != 0 {
			value |= regs.GICRCtlrRWP
			if r.rwpLeft > 0 {
				r.rwpLeft--
			}
		}
	case regs.GICRIidr:
		value = iidrARM
	case regs.GICRTyper:
		value = r.typer()
	case regs.GICRTyper + 4:
		value = r.typer() >> 32
	case regs.GICRWaker:
		value = uint64(r.waker)
	case regs.GICRPidr2, regs.GICRSGIOffset + regs.GICRPidr2:
		value = uint64(r.m.params.ArchRev << regs.PIDR2ArchRevShift)
	case regs.GICRIgroupr0:
		value = uint64(r.group)
	case regs.GICRIsenabler0, regs.GICRIcenabler0:
		value = uint64(r.enabled)
	case regs.GICRIspendr0, regs.GICRIcpendr0:
		value = uint64(r.pending)
	case regs.GICRIsactiver0, regs.GICRIcactiver0:
		value = uint64(r.active)
	case regs.GICRIcfgr0:
		value = sgiCfgr
	case regs.GICRIcfgr1:
		value = uint64(r.cfgr1)
	default:
		value = 0
	}
	hv.PutLE(data, value)
	return nil
}

func (r *redistributor) WriteMMIO(addr uint64, data []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	off := addr - r.base
	value := uint32(hv.ReadLE(data))
	switch off {
	case regs.GICRWaker:
		// ChildrenAsleep is read-only and follows ProcessorSleep unless the
		// model is told the wake handshake never completes.
		if value&regs.GICRWakerProcessorSleep == 0 {
			r.waker = 0
			if r.m.params.WakeStuck {
				r.waker = regs.GICRWakerChildrenAsleep
			}
		} else {
			r.waker = regs.GICRWakerProcessorSleep | regs.GICRWakerChildrenAsleep
		}
	case regs.GICRIgroupr0:
		r.group = value
		r.rwpLeft = r.m.params.RWPLatency
	case regs.GICRIsenabler0:
		r.enabled |= value
	case regs.GICRIcenabler0:
		r.enabled &^= value
		r.rwpLeft = r.m.params.RWPLatency
	case regs.GICRIspendr0:
		r.pending |= value
	case regs.GICRIcpendr0:
		r.pending &^= value
	case regs.GICRIsactiver0:
		r.active |= value
	case regs.GICRIcactiver0:
		r.active &^= value
	case regs.GICRIcfgr1:
		r.cfgr1 = value
	default:
		// Ignore writes to unhandled registers
	}
	return nil
}

// highestPending returns the lowest-numbered SGI or PPI ready on this CPU.
func (r *redistributor) highestPending() (uint32, bool) {
	if r.waker&regs.GICRWakerChildrenAsleep != 0 {
		return 0, false
	}
	ready := r.pending & r.enabled &^ r.active
	for bit := range uint32(32) {
		if ready&(1<<bit) != 0 {
			return bit, true
		}
	}
	return 0, false
}

var _ hv.MemoryMappedIODevice = (*redistributor)(nil)
