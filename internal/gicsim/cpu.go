package gicsim

import (
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/topology"
)

// CPUInterface models the ICC system registers of one CPU. It satisfies the
// driver's CPU interface, so tests and the CLI hand it to every per-CPU call.
type CPUInterface struct {
	m   *Machine
	id  int
	aff topology.Affinity

	// Guarded by Machine.mu.
	sre     uint64
	pmr     uint64
	ctlr    uint64
	igrpen1 uint64
	isbs    int
	iar     []uint32
	running []uint32
}

func newCPUInterface(m *Machine, id int, aff topology.Affinity) *CPUInterface {
	return &CPUInterface{m: m, id: id, aff: aff}
}

func (c *CPUInterface) reset() {
	c.sre, c.pmr, c.ctlr, c.igrpen1 = 0, 0, 0, 0
	c.isbs = 0
	c.iar = nil
	c.running = nil
}

// ID returns the logical CPU number.
func (c *CPUInterface) ID() int { return c.id }

// Affinity returns the CPU's cluster and core.
func (c *CPUInterface) Affinity() topology.Affinity { return c.aff }

// ISB counts barriers; the model has nothing to synchronize.
func (c *CPUInterface) ISB() {
	c.m.mu.Lock()
	c.isbs++
	c.m.mu.Unlock()
}

// ISBs returns how many barriers this CPU has issued.
func (c *CPUInterface) ISBs() int {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.isbs
}

// QueueIAR scripts the values returned by the next ICC_IAR1_EL1 reads,
// ahead of anything the model would otherwise acknowledge.
func (c *CPUInterface) QueueIAR(values ...uint32) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.iar = append(c.iar, values...)
}

// SysReg returns the current value of a register without recording an access.
func (c *CPUInterface) SysReg(reg regs.SysReg) uint64 {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.load(reg)
}

func (c *CPUInterface) load(reg regs.SysReg) uint64 {
	switch reg {
	case regs.SysRegSRE:
		return c.sre
	case regs.SysRegPMR:
		return c.pmr
	case regs.SysRegCTLR:
		return c.ctlr
	case regs.SysRegIGRPEN1:
		return c.igrpen1
	default:
		return 0
	}
}

func (c *CPUInterface) ReadSysReg(reg regs.SysReg) uint64 {
	c.m.mu.Lock()
	var v uint64
	if reg == regs.SysRegIAR1 {
		v = uint64(c.acknowledge())
	} else {
		v = c.load(reg)
	}
	c.m.mu.Unlock()

	c.m.record(Access{Kind: SysRead, CPU: c.id, Reg: reg, Value: v})
	return v
}

func (c *CPUInterface) WriteSysReg(reg regs.SysReg, value uint64) {
	c.m.record(Access{Kind: SysWrite, CPU: c.id, Reg: reg, Value: value})

	c.m.mu.Lock()
	c.store(reg, value)
	c.m.mu.Unlock()
	c.m.flushEOI()
}

func (c *CPUInterface) store(reg regs.SysReg, value uint64) {
	switch reg {
	case regs.SysRegSRE:
		if c.m.params.SRELocked {
			value &^= regs.ICCSRESRE
		}
		c.sre = value
	case regs.SysRegPMR:
		c.pmr = value & 0xFF
	case regs.SysRegCTLR:
		c.ctlr = value
	case regs.SysRegIGRPEN1:
		c.igrpen1 = value & regs.ICCIGRPEN1Enable
	case regs.SysRegEOIR1:
		c.endOfInterrupt(uint32(value) & regs.IntIDMask)
	case regs.SysRegDIR:
		c.deactivate(uint32(value) & regs.IntIDMask)
	case regs.SysRegSGI1R:
		c.m.raiseSGI(value)
	}
}

// acknowledge implements an ICC_IAR1_EL1 read: the highest priority ready
// interrupt becomes active, or 1023 comes back when nothing is ready.
func (c *CPUInterface) acknowledge() uint32 {
	if len(c.iar) > 0 {
		v := c.iar[0]
		c.iar = c.iar[1:]
		if v < regs.IntIDSpurious {
			c.m.markActive(c.id, v)
			c.running = append(c.running, v)
		}
		return v
	}
	if c.igrpen1 == 0 {
		return regs.IntIDNone
	}
	rd := c.m.redists[c.id]
	intid, ok := rd.highestPending()
	if !ok {
		intid, ok = c.m.dist.highestPending(c.aff.IRouter())
	}
	if !ok {
		return regs.IntIDNone
	}
	c.m.markActive(c.id, intid)
	c.running = append(c.running, intid)
	return intid
}

// endOfInterrupt drops the running priority. Without split EOI mode it
// also deactivates.
func (c *CPUInterface) endOfInterrupt(intid uint32) {
	for i := len(c.running) - 1; i >= 0; i-- {
		if c.running[i] == intid {
			c.running = append(c.running[:i], c.running[i+1:]...)
			break
		}
	}
	if c.ctlr&regs.ICCCTLREOIMode == 0 {
		c.deactivate(intid)
	}
}

func (c *CPUInterface) deactivate(intid uint32) {
	c.m.clearActive(c.id, intid)
	c.m.eoi = append(c.m.eoi, intid)
}

// Running returns the interrupts acknowledged but not yet EOIed, oldest
// first.
func (c *CPUInterface) Running() []uint32 {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return append([]uint32(nil), c.running...)
}
