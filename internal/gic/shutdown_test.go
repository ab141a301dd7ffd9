package gic

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/topology"
)

func TestPrepareCPUForShutdownClean(t *testing.T) {
	d, m := bootedSystem(t, 2, 2)
	if err := d.PrepareCPUForShutdown(m.CPU(3)); err != nil {
		t.Fatalf("PrepareCPUForShutdown: %v", err)
	}
	if got := m.CPU(3).SysReg(regs.SysRegIGRPEN1); got != 0 {
		t.Fatalf("IGRPEN1 = %d, want 0", got)
	}
	if d.Online().Has(3) {
		t.Fatalf("cpu3 still online")
	}
	// The powered-down CPU no longer receives IPIs.
	m.ResetLog()
	if err := d.SendIPI(m.CPU(0), MaskOf(3), IPIGeneric); err != nil {
		t.Fatalf("SendIPI: %v", err)
	}
	if writes := sgi1rWrites(m, -1); len(writes) != 0 {
		t.Fatalf("SGI sent to powered-down cpu: %#x", writes)
	}
}

func TestPrepareCPUForShutdownEnabledPPIFatal(t *testing.T) {
	d, m := bootedSystem(t, 2)
	d.SetFatalAssertions(true)
	m.EnablePPI(1, 30)

	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatalf("PrepareCPUForShutdown did not panic")
			}
			if err, ok := r.(error); !ok || !errors.Is(err, ErrPrecondition) {
				t.Fatalf("panic value %v, want ErrPrecondition", r)
			}
		}()
		_ = d.PrepareCPUForShutdown(m.CPU(1))
	}()

	if got := m.CPU(1).SysReg(regs.SysRegIGRPEN1); got != 1 {
		t.Fatalf("IGRPEN1 = %d, want interface left enabled", got)
	}
	if got := len(m.SysWrites(1, regs.SysRegIGRPEN1)); got != 0 {
		t.Fatalf("IGRPEN1 writes = %d before the assertion", got)
	}
}

func TestPrepareCPUForShutdownViolationNonFatal(t *testing.T) {
	d, m := bootedSystem(t, 2)
	d.SetFatalAssertions(false)
	m.EnablePPI(1, 16)

	mem, err := debug.OpenMemory()
	if err != nil {
		t.Fatalf("debug.OpenMemory: %v", err)
	}
	defer debug.Close()

	err = d.PrepareCPUForShutdown(m.CPU(1))
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
	if got := m.CPU(1).SysReg(regs.SysRegIGRPEN1); got != 0 {
		t.Fatalf("IGRPEN1 = %d, want 0", got)
	}
	if got := d.Stats().PowerDownViolation; got != 1 {
		t.Fatalf("PowerDownViolation = %d, want 1", got)
	}
	r, err := debug.NewReader(bytes.NewReader(mem.Bytes()))
	if err != nil {
		t.Fatalf("debug.NewReader: %v", err)
	}
	if got := r.Count(srcPowerDown); got != 1 {
		t.Fatalf("power-down events = %d, want 1", got)
	}
}

func TestPrepareCPUForShutdownRoutedSPI(t *testing.T) {
	d, m := bootedSystem(t, 2, 2)
	d.SetFatalAssertions(false)

	aff := topology.Affinity{Cluster: 1, Core: 0}
	m.SetRouter(99, aff.IRouter())
	if err := d.PrepareCPUForShutdown(m.CPU(2)); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition for SPI routed to cpu2", err)
	}

	// Broadcast routing does not pin the SPI to cpu3.
	m.SetRouter(99, regs.IRouterIRM|topology.Affinity{Cluster: 1, Core: 1}.IRouter())
	if err := d.PrepareCPUForShutdown(m.CPU(3)); err != nil {
		t.Fatalf("IRM-routed SPI blocked shutdown: %v", err)
	}
}

func TestPrepareCPUForShutdownBootCPUSkipsChecks(t *testing.T) {
	d, m := bootedSystem(t, 2)
	d.SetFatalAssertions(true)
	m.EnablePPI(0, 27)
	// Every SPI is routed to 0.0 after GlobalInit.
	if err := d.PrepareCPUForShutdown(m.CPU(0)); err != nil {
		t.Fatalf("boot cpu shutdown: %v", err)
	}
	if got := m.CPU(0).SysReg(regs.SysRegIGRPEN1); got != 0 {
		t.Fatalf("IGRPEN1 = %d, want 0", got)
	}
}

func TestPrepareCPUForShutdownBadCPU(t *testing.T) {
	d, _ := bootedSystem(t, 1)
	if err := d.PrepareCPUForShutdown(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
