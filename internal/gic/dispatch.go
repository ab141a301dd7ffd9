package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
)

// EOIPolicy tells the dispatch path whether to deactivate an interrupt as
// soon as its handler returns.
type EOIPolicy int

const (
	// DeactivateNow writes DIR right after EOIR.
	DeactivateNow EOIPolicy = iota
	// DeactivateLater leaves the interrupt active; the handler's owner calls
	// Deactivate once it is done with the line.
	DeactivateLater
)

func (p EOIPolicy) String() string {
	switch p {
	case DeactivateNow:
		return "deactivate-now"
	case DeactivateLater:
		return "deactivate-later"
	default:
		return fmt.Sprintf("EOIPolicy(%d)", int(p))
	}
}

// HandlerTable is the externally owned per-vector handler registry.
// Dispatch runs the handler for vector and reports false when none is
// registered.
type HandlerTable interface {
	Dispatch(vector uint32) (EOIPolicy, bool)
}

// HandlerTableFunc adapts a function to HandlerTable.
type HandlerTableFunc func(vector uint32) (EOIPolicy, bool)

func (f HandlerTableFunc) Dispatch(vector uint32) (EOIPolicy, bool) { return f(vector) }

// RegisterHandlerTable installs the table consulted by HandleIRQ. Passing
// nil removes it.
func (d *Driver) RegisterHandlerTable(t HandlerTable) {
	if t == nil {
		d.handlers.Store(nil)
		return
	}
	d.handlers.Store(&handlerRef{table: t})
}

// HandleIRQ is the IRQ exception entry for cpu. It acknowledges one
// interrupt, runs its handler and completes it.
func (d *Driver) HandleIRQ(cpu CPU) {
	vector := uint32(cpu.ReadSysReg(regs.SysRegIAR1)) & regs.IntIDMask
	if vector >= regs.IntIDSpurious {
		d.stats.spurious.Add(1)
		debug.Writef(srcSpurious, "cpu=%d intid=%d", cpu.ID(), vector)
		return
	}
	if vector >= regs.SPIBase {
		if id := cpu.ID(); id >= 0 && id < len(d.stats.irqs) {
			d.stats.irqs[id].Add(1)
		}
	}

	policy := DeactivateNow
	if ref := d.handlers.Load(); ref != nil {
		if p, ok := ref.table.Dispatch(vector); ok {
			policy = p
		}
	}

	cpu.WriteSysReg(regs.SysRegEOIR1, uint64(vector))
	if policy == DeactivateNow {
		cpu.WriteSysReg(regs.SysRegDIR, uint64(vector))
	}
}

// HandleFIQ is the FIQ exception entry. FIQs are never routed to the
// non-secure world in this configuration, so taking one is fatal.
func (d *Driver) HandleFIQ(cpu CPU) {
	id := -1
	if cpu != nil {
		id = cpu.ID()
	}
	panic(fmt.Sprintf("gicv3: FIQ taken on cpu %d", id))
}
