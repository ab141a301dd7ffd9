package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/topology"
)

// GlobalInit brings the distributor to a clean, affinity-routed state. It
// runs once, on the boot CPU, with interrupts disabled, and finishes with
// PerCPUEarlyInit for that CPU.
func (d *Driver) GlobalInit(boot CPU) error {
	if d.halted.Load() {
		return fmt.Errorf("%w: controller was shut down", ErrBadState)
	}
	if d.initialized.Load() {
		return fmt.Errorf("%w: already initialized", ErrBadState)
	}
	if boot == nil {
		return fmt.Errorf("%w: nil boot CPU", ErrInvalidArgument)
	}

	pidr2 := d.bus.Read32(d.gicd + regs.GICDPidr2)
	rev := (pidr2 >> regs.PIDR2ArchRevShift) & regs.PIDR2ArchRevMask
	if rev != regs.ArchRevGICv3 && rev != regs.ArchRevGICv4 {
		return fmt.Errorf("%w: architecture revision %d", ErrNotFound, rev)
	}

	typer := d.bus.Read32(d.gicd + regs.GICDTyper)
	vectors := vectorsFromTyper(typer)
	d.maxVectors.Store(uint64(vectors))

	d.bus.Write32(d.gicd+regs.GICDCtlr, 0)
	d.waitDistributorRWP()
	boot.ISB()

	for i := uint32(regs.SPIBase); i < vectors; i += 32 {
		off := regs.Word32(i)
		d.bus.Write32(d.gicd+regs.GICDIcenabler+off, ^uint32(0))
		d.bus.Write32(d.gicd+regs.GICDIcpendr+off, ^uint32(0))
		d.bus.Write32(d.gicd+regs.GICDIgroupr+off, ^uint32(0))
	}
	d.waitDistributorRWP()

	d.bus.Write32(d.gicd+regs.GICDCtlr, regs.GICDCtlrARE|regs.GICDCtlrEnableGrp1NS)
	d.waitDistributorRWP()

	// Routing every SPI to affinity 0.0 is only correct when CPU 0 sits there.
	if id := boot.ID(); id != 0 {
		return fmt.Errorf("%w: global init on cpu %d, want cpu 0", ErrPrecondition, id)
	}
	aff, err := d.topo.Affinity(0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if aff != (topology.Affinity{}) {
		return fmt.Errorf("%w: boot cpu affinity %s, want 0.0", ErrPrecondition, aff)
	}

	// IROUTER is only meaningful once affinity routing is on.
	if (typer>>regs.GICDTyperCPUShift)&regs.GICDTyperCPUMask > 0 {
		for i := uint32(regs.SPIBase); i < vectors; i++ {
			d.bus.Write64(d.gicd+regs.IRouter(i), aff.IRouter())
		}
	}

	d.initialized.Store(true)
	debug.Writef(srcGlobalInit, "rev=%d vectors=%d typer=%#x", rev, vectors, typer)
	d.log.Debug("distributor initialized", "revision", rev, "vectors", vectors)

	return d.PerCPUEarlyInit(boot)
}

// PerCPUEarlyInit prepares the calling CPU's redistributor and CPU interface.
// It runs once per CPU before that CPU accepts interrupts.
func (d *Driver) PerCPUEarlyInit(cpu CPU) error {
	id, err := d.checkCPU(cpu)
	if err != nil {
		return err
	}
	if !d.initialized.Load() {
		return fmt.Errorf("%w: cpu %d early init before global init", ErrBadState, id)
	}
	rd := d.redist(id)

	d.wakeRedistributor(id)

	d.bus.Write32(rd+regs.GICRIgroupr0, ^uint32(0))
	d.waitRedistributorRWP(id)

	d.bus.Write32(rd+regs.GICRIcenabler0, ^uint32(0))
	d.bus.Write32(rd+regs.GICRIcpendr0, ^uint32(0))
	d.waitRedistributorRWP(id)

	sre := cpu.ReadSysReg(regs.SysRegSRE)
	if sre&regs.ICCSRESRE == 0 {
		cpu.WriteSysReg(regs.SysRegSRE, sre|regs.ICCSRESRE)
		cpu.ISB()
		sre = cpu.ReadSysReg(regs.SysRegSRE)
		if sre&regs.ICCSRESRE == 0 {
			return fmt.Errorf("%w: cpu %d: system register interface stuck disabled", ErrNotSupported, id)
		}
	}

	cpu.WriteSysReg(regs.SysRegPMR, regs.ICCPMRAcceptAll)
	cpu.WriteSysReg(regs.SysRegCTLR, regs.ICCCTLREOIMode)
	cpu.WriteSysReg(regs.SysRegIGRPEN1, regs.ICCIGRPEN1Enable)
	cpu.ISB()

	debug.Writef(srcPerCPUInit, "cpu=%d early", id)
	return nil
}

// PerCPULateInit marks the calling CPU online and unmasks the IPI vectors.
func (d *Driver) PerCPULateInit(cpu CPU) error {
	id, err := d.checkCPU(cpu)
	if err != nil {
		return err
	}
	if !d.initialized.Load() {
		return fmt.Errorf("%w: cpu %d late init before global init", ErrBadState, id)
	}
	d.setOnline(id, true)
	for kind := range numIPIKinds {
		if err := d.Unmask(d.ipiVector(kind)); err != nil {
			return fmt.Errorf("gicv3: cpu %d unmask %s: %w", id, kind, err)
		}
	}
	debug.Writef(srcPerCPUInit, "cpu=%d online=%s", id, d.Online())
	return nil
}

// GlobalShutdown disables the distributor for a whole-system halt. Routing
// state is lost and the controller cannot be brought back up.
func (d *Driver) GlobalShutdown() {
	d.bus.Write32(d.gicd+regs.GICDCtlr, 0)
	d.halted.Store(true)
	d.initialized.Store(false)
	debug.Writef(srcGlobalHalt, "distributor disabled")
}
