package gicsim

import (
	"testing"

	"github.com/tinyrange/gicv3/internal/gic/regs"
)

const (
	testGICD = 0x08000000
	testGICR = 0x080a0000
	testWake = 0x09000000
)

func newTestMachine(t *testing.T, p Params, clusters ...int) *Machine {
	t.Helper()
	m, err := New(Layout{
		DistributorBase:     testGICD,
		RedistributorBase:   testGICR,
		RedistributorStride: regs.RedistributorFrameSize,
		WakeAddr:            testWake,
		Clusters:            clusters,
	}, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestIdentification(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 2, 2)

	pidr2 := m.Read32(testGICD + regs.GICDPidr2)
	if rev := (pidr2 >> regs.PIDR2ArchRevShift) & regs.PIDR2ArchRevMask; rev != regs.ArchRevGICv3 {
		t.Fatalf("arch rev = %d, want 3", rev)
	}
	typer := m.Read32(testGICD + regs.GICDTyper)
	if lines := (typer&regs.GICDTyperITLinesMask + 1) * 32; lines != 256 {
		t.Fatalf("lines = %d, want 256", lines)
	}
	if cpus := (typer>>regs.GICDTyperCPUShift)&regs.GICDTyperCPUMask + 1; cpus != 4 {
		t.Fatalf("cpus = %d, want 4", cpus)
	}

	// CPU 3 is cluster 1 core 1 and has the last redistributor.
	rd := uint64(testGICR + 3*regs.RedistributorFrameSize)
	gtyper := m.Read64(rd + regs.GICRTyper)
	if aff := gtyper >> regs.GICRTyperAffinityShift; aff != 0x101 {
		t.Fatalf("GICR_TYPER affinity = %#x, want 0x101", aff)
	}
	if gtyper&regs.GICRTyperLast == 0 {
		t.Fatalf("GICR_TYPER.Last clear on final redistributor")
	}
}

func TestRWPLatency(t *testing.T) {
	p := DefaultParams()
	p.RWPLatency = 3
	m := newTestMachine(t, p, 1)

	m.Write32(testGICD+regs.GICDCtlr, regs.GICDCtlrARE)
	for i := range 3 {
		if m.Read32(testGICD+regs.GICDCtlr)&regs.GICDCtlrRWP == 0 {
			t.Fatalf("read %d: RWP clear, want set", i)
		}
	}
	if v := m.Read32(testGICD + regs.GICDCtlr); v != regs.GICDCtlrARE {
		t.Fatalf("GICD_CTLR = %#x, want ARE only", v)
	}

	m.SetRWPLatency(-1)
	m.Write32(testGICR+regs.GICRIcenabler0, ^uint32(0))
	for range 100 {
		if m.Read32(testGICR+regs.GICRCtlr)&regs.GICRCtlrRWP == 0 {
			t.Fatalf("stuck RWP cleared")
		}
	}
}

func TestWaker(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	waker := uint64(testGICR + regs.GICRWaker)
	if v := m.Read32(waker); v&regs.GICRWakerChildrenAsleep == 0 {
		t.Fatalf("WAKER = %#x, want ChildrenAsleep at reset", v)
	}
	m.Write32(waker, 0)
	if v := m.Read32(waker); v != 0 {
		t.Fatalf("WAKER = %#x after wake, want 0", v)
	}
}

func TestAcknowledgeSPI(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 2)
	cpu := m.CPU(1)

	m.Write32(testGICD+regs.GICDCtlr, regs.GICDCtlrARE|regs.GICDCtlrEnableGrp1NS)
	m.Write32(testGICD+regs.GICDIsenabler+regs.Word32(40), regs.Bit32(40))
	m.Write32(testGICD+regs.GICDIcfgr+regs.Word16(40), regs.EdgeBit16(40))
	m.Write64(testGICD+regs.IRouter(40), 0x1)
	for n := range 2 {
		m.CPU(n).WriteSysReg(regs.SysRegCTLR, regs.ICCCTLREOIMode)
		m.CPU(n).WriteSysReg(regs.SysRegIGRPEN1, 1)
	}

	deactivated := 0
	m.OnDeactivate(40, func() { deactivated++ })
	m.Line(40).PulseInterrupt()

	if got := m.CPU(0).ReadSysReg(regs.SysRegIAR1); got != regs.IntIDNone {
		t.Fatalf("cpu0 IAR = %d, want 1023 (routed elsewhere)", got)
	}
	if got := cpu.ReadSysReg(regs.SysRegIAR1); got != 40 {
		t.Fatalf("cpu1 IAR = %d, want 40", got)
	}
	if !m.Active(1, 40) || m.Pending(1, 40) {
		t.Fatalf("after ack: active=%v pending=%v", m.Active(1, 40), m.Pending(1, 40))
	}

	cpu.WriteSysReg(regs.SysRegEOIR1, 40)
	if !m.Active(1, 40) {
		t.Fatalf("split EOI deactivated on EOIR")
	}
	cpu.WriteSysReg(regs.SysRegDIR, 40)
	if m.Active(1, 40) {
		t.Fatalf("still active after DIR")
	}
	if deactivated != 1 {
		t.Fatalf("deactivate callbacks = %d, want 1", deactivated)
	}
}

func TestSGIDelivery(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 2, 3)

	m.CPU(0).WriteSysReg(regs.SysRegSGI1R, regs.SGI1R(5, 1, 0b101))

	for cpu, want := range []bool{false, false, true, false, true} {
		if got := m.Pending(cpu, 5); got != want {
			t.Fatalf("cpu%d SGI 5 pending = %v, want %v", cpu, got, want)
		}
	}
	if got := m.SGIsReceived(2); got != 1 {
		t.Fatalf("SGIsReceived(2) = %d, want 1", got)
	}
	if got := len(m.SysWrites(0, regs.SysRegSGI1R)); got != 1 {
		t.Fatalf("SGI1R writes = %d, want 1", got)
	}
}

func TestScriptedIAR(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	cpu := m.CPU(0)
	cpu.QueueIAR(regs.IntIDSpurious, 45)

	if got := cpu.ReadSysReg(regs.SysRegIAR1); got != regs.IntIDSpurious {
		t.Fatalf("IAR = %d, want 1022", got)
	}
	if got := cpu.ReadSysReg(regs.SysRegIAR1); got != 45 {
		t.Fatalf("IAR = %d, want 45", got)
	}
	if r := cpu.Running(); len(r) != 1 || r[0] != 45 {
		t.Fatalf("Running = %v, want [45]", r)
	}
	// Nothing else queued and the interface is disabled.
	if got := cpu.ReadSysReg(regs.SysRegIAR1); got != regs.IntIDNone {
		t.Fatalf("IAR = %d, want 1023", got)
	}
}

func TestSRELocked(t *testing.T) {
	p := DefaultParams()
	p.SRELocked = true
	m := newTestMachine(t, p, 1)
	m.CPU(0).WriteSysReg(regs.SysRegSRE, regs.ICCSRESRE)
	if v := m.CPU(0).SysReg(regs.SysRegSRE); v&regs.ICCSRESRE != 0 {
		t.Fatalf("SRE = %#x, want SRE bit stuck at 0", v)
	}
}

func TestWakePulses(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	m.Write32(testWake, 1<<7)
	m.Write32(testWake, 0)
	m.Write32(testWake, 1<<7)
	if got := m.WakePulses(7); got != 1 {
		t.Fatalf("WakePulses = %d, want 1", got)
	}
}

func TestAccessLogAndReset(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	m.Write32(testGICD+regs.GICDIsenabler+4, 0x3)
	m.Read32(testGICD + regs.GICDTyper)

	if got := m.MMIOWritesTo(testGICD + regs.GICDIsenabler + 4); len(got) != 1 || got[0].Value != 0x3 {
		t.Fatalf("writes = %v", got)
	}
	if m.Reads() != 1 {
		t.Fatalf("Reads = %d, want 1", m.Reads())
	}
	if !m.Enabled(0, 32) || !m.Enabled(0, 33) {
		t.Fatalf("SPIs 32/33 not enabled")
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.Enabled(0, 32) || len(m.Log()) != 0 {
		t.Fatalf("state survived Reset")
	}
}

func TestUnmappedAccessPanics(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	defer func() {
		if recover() == nil {
			t.Fatalf("unmapped read did not panic")
		}
	}()
	m.Read32(0x1000)
}

func TestDistributorAccessWidth(t *testing.T) {
	m := newTestMachine(t, DefaultParams(), 1)
	// 32-bit halves of IROUTER are allowed.
	m.Write32(testGICD+regs.IRouter(33)+4, 0x1)
	if got := m.Read64(testGICD + regs.IRouter(33)); got != 1<<32 {
		t.Fatalf("IROUTER = %#x, want 1<<32", got)
	}
	for _, addr := range []uint64{testGICD + regs.GICDCtlr, testGICD + regs.IRouter(33) + 4} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("64-bit read at %#x did not panic", addr)
				}
			}()
			m.Read64(addr)
		}()
	}
}

func TestNewRejectsBadLines(t *testing.T) {
	p := DefaultParams()
	p.Lines = 100
	if _, err := New(Layout{RedistributorStride: regs.RedistributorFrameSize, Clusters: []int{1}}, p); err == nil {
		t.Fatalf("New accepted 100 lines")
	}
}
