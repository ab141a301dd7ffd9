package gic

import (
	"errors"
	"fmt"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
)

// PrepareCPUForShutdown quiesces cpu before it is powered off. Interrupts
// must already be disabled on cpu.
//
// A CPU that still has a PPI enabled or an SPI routed to it must not power
// down. With fatal assertions on, that panics before the CPU interface is
// touched. Otherwise the interface is still disabled and the violation is
// returned wrapping ErrPrecondition.
func (d *Driver) PrepareCPUForShutdown(cpu CPU) error {
	id, err := d.checkCPU(cpu)
	if err != nil {
		return err
	}

	var violations []error
	if id != 0 {
		violations = d.powerDownViolations(id)
	}

	var ret error
	if len(violations) > 0 {
		ret = fmt.Errorf("%w: cpu %d: %w", ErrPrecondition, id, errors.Join(violations...))
		d.stats.powerDownViolation.Add(1)
		debug.Writef(srcPowerDown, "cpu=%d %v", id, ret)
		if d.fatal.Load() {
			panic(ret)
		}
		d.log.Error("cpu powering down with live interrupt sources", "cpu", id, "err", ret)
	}

	cpu.WriteSysReg(regs.SysRegIGRPEN1, 0)
	cpu.ISB()
	d.setOnline(id, false)
	debug.Writef(srcCPUShutdown, "cpu=%d", id)
	return ret
}

func (d *Driver) powerDownViolations(id int) []error {
	var out []error
	if en := d.bus.Read32(d.redist(id)+regs.GICRIsenabler0) & regs.PPIMask; en != 0 {
		out = append(out, fmt.Errorf("ppi enable bits %#x", en))
	}

	aff, err := d.topo.Affinity(id)
	if err != nil {
		return append(out, err)
	}
	want := aff.IRouter()
	for i := uint32(regs.SPIBase); i < d.MaxVector(); i++ {
		r := d.bus.Read64(d.gicd + regs.IRouter(i))
		if r&regs.IRouterIRM == 0 && r&regs.IRouterAffinityMask == want {
			out = append(out, fmt.Errorf("spi %d routed to %s", i, aff))
		}
	}
	return out
}
