// Package gic drives an ARM Generic Interrupt Controller v3/v4: one shared
// distributor, a redistributor per CPU and the ICC system-register CPU
// interface.
//
// The driver holds no software lock. The distributor is last-writer-wins at
// the granularity of a single register write, ordered by the hardware's
// register-write-pending handshake. Callers serialize concurrent Mask,
// Unmask and Configure calls on the same vector.
package gic

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/hv"
	"github.com/tinyrange/gicv3/internal/topology"
	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// Debug log sources.
const (
	srcRWPTimeout   = "gicv3 rwp timeout"
	srcWakeTimeout  = "gicv3 redistributor wake timeout"
	srcSpurious     = "gicv3 spurious"
	srcPowerDown    = "gicv3 power-down precondition"
	srcDiscover     = "gicv3 discover"
	srcGlobalInit   = "gicv3 global init"
	srcPerCPUInit   = "gicv3 per-cpu init"
	srcCPUShutdown  = "gicv3 cpu shutdown"
	srcGlobalHalt   = "gicv3 global shutdown"
	srcErratumPulse = "gicv3 erratum wake"
)

type handlerRef struct {
	table HandlerTable
}

// Driver is the single owned handle to a GICv3 register block.
type Driver struct {
	cfg  Config
	bus  Bus
	topo *topology.Topology
	log  *slog.Logger

	gicd uint64

	maxVectors  atomicbitops.Uint64
	initialized atomicbitops.Bool
	halted      atomicbitops.Bool
	fatal       atomicbitops.Bool

	online   atomicbitops.Uint64
	handlers atomic.Pointer[handlerRef]

	stats counters
}

type counters struct {
	irqs               [topology.MaxCPUs]atomicbitops.Uint64
	spurious           atomicbitops.Uint64
	rwpTimeouts        atomicbitops.Uint64
	wakeTimeouts       atomicbitops.Uint64
	sgiWrites          atomicbitops.Uint64
	erratumPulses      atomicbitops.Uint64
	powerDownViolation atomicbitops.Uint64
}

// Stats is a snapshot of the driver's diagnostic counters.
type Stats struct {
	// IRQs counts acknowledged interrupts at or above vector 32, per CPU.
	IRQs               []uint64
	Spurious           uint64
	RWPTimeouts        uint64
	WakeTimeouts       uint64
	SGIWrites          uint64
	ErratumPulses      uint64
	PowerDownViolation uint64
}

// New validates cfg and returns a driver that has not touched hardware yet.
func New(cfg Config, bus Bus) (*Driver, error) {
	if bus == nil {
		return nil, fmt.Errorf("gicv3: nil bus")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	topo, err := topology.New(cfg.Clusters)
	if err != nil {
		return nil, fmt.Errorf("gicv3: %w", err)
	}
	d := &Driver{
		cfg:  cfg,
		bus:  bus,
		topo: topo,
		log:  slog.Default().With("component", "gicv3"),
		gicd: cfg.DistributorBase(),
	}
	d.fatal.Store(defaultFatalAssertions)
	return d, nil
}

// Discover brings up the controller described by cfg on the boot CPU and
// reports its register ranges to deny, which may be nil.
//
// A nil Driver with a nil error means the controller is absent and cfg
// marked it optional. Any other failure is fatal to the platform.
func Discover(cfg Config, bus Bus, boot CPU, deny DenyLister) (*Driver, error) {
	d, err := New(cfg, bus)
	if err != nil {
		return nil, err
	}
	if err := d.GlobalInit(boot); err != nil {
		if errors.Is(err, ErrNotFound) && cfg.Optional {
			debug.Writef(srcDiscover, "optional controller absent at %#x: %v", cfg.Base, err)
			d.log.Info("optional GICv3 not present", "base", fmt.Sprintf("%#x", cfg.Base))
			return nil, nil
		}
		return nil, fmt.Errorf("gicv3: discover at %#x: %w", cfg.Base, err)
	}
	if deny != nil {
		for _, region := range d.MMIORegions() {
			if err := deny.DenyMMIO(region); err != nil {
				return nil, fmt.Errorf("gicv3: deny MMIO %s: %w", region, err)
			}
		}
	}
	debug.Writef(srcDiscover, "base=%#x vectors=%d cpus=%d", cfg.Base, d.MaxVector(), d.topo.NumCPUs())
	return d, nil
}

// ProbeResult describes a controller without initializing it.
type ProbeResult struct {
	ArchRev     uint32
	Vectors     uint32
	CPUNumber   uint32
	Affinity    bool
	Enabled     bool
	Implementer uint32
}

// Probe reads the identification registers of the distributor at cfg
// using only loads.
func Probe(cfg Config, bus Bus) (ProbeResult, error) {
	gicd := cfg.DistributorBase()
	pidr2 := bus.Read32(gicd + regs.GICDPidr2)
	typer := bus.Read32(gicd + regs.GICDTyper)
	ctlr := bus.Read32(gicd + regs.GICDCtlr)
	res := ProbeResult{
		ArchRev:     (pidr2 >> regs.PIDR2ArchRevShift) & regs.PIDR2ArchRevMask,
		Vectors:     vectorsFromTyper(typer),
		CPUNumber:   (typer>>regs.GICDTyperCPUShift)&regs.GICDTyperCPUMask + 1,
		Affinity:    ctlr&regs.GICDCtlrARE != 0,
		Enabled:     ctlr&(regs.GICDCtlrEnableGrp1NS|regs.GICDCtlrEnableGrp0) != 0,
		Implementer: bus.Read32(gicd + regs.GICDIidr),
	}
	if res.ArchRev != regs.ArchRevGICv3 && res.ArchRev != regs.ArchRevGICv4 {
		return res, fmt.Errorf("%w: architecture revision %d", ErrNotFound, res.ArchRev)
	}
	return res, nil
}

// vectorsFromTyper turns GICD_TYPER.ITLinesNumber into a vector count,
// always a multiple of 32.
func vectorsFromTyper(typer uint32) uint32 {
	return ((typer & regs.GICDTyperITLinesMask) + 1) * 32
}

// SetLogger replaces the driver's logger.
func (d *Driver) SetLogger(l *slog.Logger) {
	if l != nil {
		d.log = l
	}
}

// SetFatalAssertions chooses whether precondition violations panic. Builds
// with the gicdebug tag default to true.
func (d *Driver) SetFatalAssertions(fatal bool) { d.fatal.Store(fatal) }

// Topology returns the CPU topology the driver routes against.
func (d *Driver) Topology() *topology.Topology { return d.topo }

// Online returns the set of CPUs that completed PerCPULateInit.
func (d *Driver) Online() CPUMask { return CPUMask(d.online.Load()) }

// MMIORegions returns the distributor frame and every CPU's redistributor
// frames, for the resource-protection deny list.
func (d *Driver) MMIORegions() []hv.MMIORegion {
	out := []hv.MMIORegion{{Address: d.gicd, Size: regs.DistributorSize}}
	for cpu := range d.topo.NumCPUs() {
		out = append(out, hv.MMIORegion{
			Address: d.cfg.RedistributorBase(cpu),
			Size:    regs.RedistributorFrameSize,
		})
	}
	return out
}

// Stats returns a snapshot of the diagnostic counters.
func (d *Driver) Stats() Stats {
	s := Stats{
		IRQs:               make([]uint64, d.topo.NumCPUs()),
		Spurious:           d.stats.spurious.Load(),
		RWPTimeouts:        d.stats.rwpTimeouts.Load(),
		WakeTimeouts:       d.stats.wakeTimeouts.Load(),
		SGIWrites:          d.stats.sgiWrites.Load(),
		ErratumPulses:      d.stats.erratumPulses.Load(),
		PowerDownViolation: d.stats.powerDownViolation.Load(),
	}
	for i := range s.IRQs {
		s.IRQs[i] = d.stats.irqs[i].Load()
	}
	return s
}

func (d *Driver) redist(cpu int) uint64 { return d.cfg.RedistributorBase(cpu) }

func (d *Driver) checkCPU(cpu CPU) (int, error) {
	if cpu == nil {
		return -1, fmt.Errorf("%w: nil CPU", ErrInvalidArgument)
	}
	id := cpu.ID()
	if id < 0 || id >= d.topo.NumCPUs() {
		return -1, fmt.Errorf("%w: cpu %d outside topology of %d", ErrInvalidArgument, id, d.topo.NumCPUs())
	}
	return id, nil
}

func (d *Driver) setOnline(cpu int, online bool) {
	bit := uint64(1) << uint(cpu)
	for {
		old := d.online.Load()
		next := old | bit
		if !online {
			next = old &^ bit
		}
		if d.online.CompareAndSwap(old, next) {
			return
		}
	}
}
