package gicsim

import (
	"github.com/tinyrange/gicv3/internal/gic/regs"
)

func (m *Machine) record(a Access) {
	m.logMu.Lock()
	m.log = append(m.log, a)
	m.logMu.Unlock()
}

func (m *Machine) countRead() {
	m.logMu.Lock()
	m.reads++
	m.logMu.Unlock()
}

// Log returns every recorded access in order.
func (m *Machine) Log() []Access {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return append([]Access(nil), m.log...)
}

// ResetLog discards the recorded accesses and the read count.
func (m *Machine) ResetLog() {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	m.log = nil
	m.reads = 0
}

// Reads returns how many MMIO reads were made since the last ResetLog.
func (m *Machine) Reads() uint64 {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	return m.reads
}

// Writes returns the recorded MMIO and system register writes.
func (m *Machine) Writes() []Access {
	var out []Access
	for _, a := range m.Log() {
		if a.Kind != SysRead {
			out = append(out, a)
		}
	}
	return out
}

// MMIOWritesTo returns the recorded MMIO writes to addr.
func (m *Machine) MMIOWritesTo(addr uint64) []Access {
	var out []Access
	for _, a := range m.Log() {
		if a.Kind == MMIOWrite && a.Addr == addr {
			out = append(out, a)
		}
	}
	return out
}

// SysWrites returns the recorded writes of reg on cpu. A negative cpu
// matches every CPU.
func (m *Machine) SysWrites(cpu int, reg regs.SysReg) []Access {
	var out []Access
	for _, a := range m.Log() {
		if a.Kind == SysWrite && a.Reg == reg && (cpu < 0 || a.CPU == cpu) {
			out = append(out, a)
		}
	}
	return out
}

// DistributorCtlr returns GICD_CTLR without the RWP bit.
func (m *Machine) DistributorCtlr() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dist.ctlr
}

func (m *Machine) bit(cpu int, intid uint32, dist []uint32, rd func(*redistributor) uint32) bool {
	if intid < regs.SPIBase {
		return rd(m.redists[cpu])&regs.Bit32(intid) != 0
	}
	if intid >= m.params.Lines {
		return false
	}
	return dist[intid/32]&regs.Bit32(intid) != 0
}

// Enabled reports whether intid is enabled, in cpu's redistributor for SGIs
// and PPIs.
func (m *Machine) Enabled(cpu int, intid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bit(cpu, intid, m.dist.enabled, func(r *redistributor) uint32 { return r.enabled })
}

// Pending reports whether intid is pending.
func (m *Machine) Pending(cpu int, intid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bit(cpu, intid, m.dist.pending, func(r *redistributor) uint32 { return r.pending })
}

// Active reports whether intid is active.
func (m *Machine) Active(cpu int, intid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bit(cpu, intid, m.dist.active, func(r *redistributor) uint32 { return r.active })
}

// Group1 reports whether intid is assigned to Group 1.
func (m *Machine) Group1(cpu int, intid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bit(cpu, intid, m.dist.group, func(r *redistributor) uint32 { return r.group })
}

// EdgeTriggered reports whether intid is configured edge triggered.
func (m *Machine) EdgeTriggered(cpu int, intid uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case intid < regs.PPIBase:
		return true
	case intid < regs.SPIBase:
		return m.redists[cpu].cfgr1&regs.EdgeBit16(intid) != 0
	case intid < m.params.Lines:
		return m.dist.cfgr[intid/16]&regs.EdgeBit16(intid) != 0
	}
	return false
}

// RedistributorEnabled returns cpu's GICR_ISENABLER0.
func (m *Machine) RedistributorEnabled(cpu int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redists[cpu].enabled
}

// RedistributorPending returns cpu's GICR_ISPENDR0.
func (m *Machine) RedistributorPending(cpu int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redists[cpu].pending
}

// Waker returns cpu's GICR_WAKER.
func (m *Machine) Waker(cpu int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.redists[cpu].waker
}

// Router returns GICD_IROUTER for an SPI.
func (m *Machine) Router(intid uint32) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dist.router[intid]
}

// SetRouter overwrites GICD_IROUTER for an SPI.
func (m *Machine) SetRouter(intid uint32, v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dist.router[intid] = v
}

// EnablePPI sets the enable bit of an SGI or PPI on cpu directly.
func (m *Machine) EnablePPI(cpu int, intid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redists[cpu].enabled |= regs.Bit32(intid)
}

// SGIsReceived returns how many SGIs were delivered to cpu.
func (m *Machine) SGIsReceived(cpu int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sgis[cpu]
}

// WakePulses returns how many times bit of the wake register went from set
// to clear. It is zero when the machine has no wake register.
func (m *Machine) WakePulses(bit uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wake == nil || bit >= 32 {
		return 0
	}
	return m.wake.pulses[bit]
}
