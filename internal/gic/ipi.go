package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
)

// IPIKind names the inter-processor interrupts the kernel uses.
type IPIKind uint32

const (
	IPIGeneric IPIKind = iota
	IPIReschedule
	IPIInterrupt
	IPIHalt

	numIPIKinds
)

func (k IPIKind) String() string {
	switch k {
	case IPIGeneric:
		return "generic"
	case IPIReschedule:
		return "reschedule"
	case IPIInterrupt:
		return "interrupt"
	case IPIHalt:
		return "halt"
	default:
		return fmt.Sprintf("IPIKind(%d)", uint32(k))
	}
}

// SGIFlags selects the security state an SGI is signaled in.
type SGIFlags uint32

// SGINonSecure is the only signaling mode supported.
const SGINonSecure SGIFlags = 1 << 0

// erratumSpinReads is how many reads of the wake register make up the
// delay between raising and dropping the wake request.
const erratumSpinReads = 64

func (d *Driver) ipiVector(kind IPIKind) uint32 { return d.cfg.IPIBase + uint32(kind) }

// SendIPI raises the SGI for kind on every online CPU in targets.
func (d *Driver) SendIPI(cpu CPU, targets CPUMask, kind IPIKind) error {
	if kind >= numIPIKinds {
		return fmt.Errorf("%w: ipi %s", ErrInvalidArgument, kind)
	}
	return d.SendSGI(cpu, d.ipiVector(kind), SGINonSecure, targets)
}

// SendSGI raises SGI id on every online CPU in targets, issuing one
// ICC_SGI1R_EL1 write from cpu per cluster with at least one target.
func (d *Driver) SendSGI(cpu CPU, id uint32, flags SGIFlags, targets CPUMask) error {
	if id >= regs.PPIBase {
		return fmt.Errorf("%w: sgi %d", ErrInvalidArgument, id)
	}
	if flags != SGINonSecure {
		return fmt.Errorf("%w: sgi flags %#x", ErrInvalidArgument, uint32(flags))
	}
	if cpu == nil {
		return fmt.Errorf("%w: nil CPU", ErrInvalidArgument)
	}

	targets &= d.Online()
	if targets == 0 {
		return nil
	}

	var (
		cluster uint8
		members uint16
	)
	flush := func() {
		if members == 0 {
			return
		}
		cpu.WriteSysReg(regs.SysRegSGI1R, regs.SGI1R(id, uint32(cluster), members))
		d.stats.sgiWrites.Add(1)
		if d.cfg.ErratumWakeAddr != 0 {
			d.pulseWake()
		}
		members = 0
	}

	for n := range d.topo.NumCPUs() {
		if !targets.Has(n) {
			continue
		}
		aff, err := d.topo.Affinity(n)
		if err != nil {
			return fmt.Errorf("gicv3: sgi target: %w", err)
		}
		if members != 0 && aff.Cluster != cluster {
			flush()
		}
		cluster = aff.Cluster
		members |= 1 << aff.Core
	}
	flush()
	cpu.ISB()
	return nil
}

// pulseWake raises the vendor wake request after an SGI so a core whose CPU
// interface is powered down still comes up to take it.
func (d *Driver) pulseWake() {
	addr := d.cfg.ErratumWakeAddr
	bit := uint32(1) << d.cfg.ErratumWakeBit
	v := d.bus.Read32(addr)
	d.bus.Write32(addr, v|bit)
	for range erratumSpinReads {
		_ = d.bus.Read32(addr)
	}
	d.bus.Write32(addr, v&^bit)
	d.stats.erratumPulses.Add(1)
	debug.Writef(srcErratumPulse, "addr=%#x bit=%d", addr, d.cfg.ErratumWakeBit)
}
