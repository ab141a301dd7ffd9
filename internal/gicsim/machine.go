// Package gicsim is a software model of a GICv3 platform: a distributor, a
// redistributor and ICC system-register file per CPU, and the optional
// vendor wake register. It implements the driver's bus and CPU interfaces
// and records every write so tests can assert on exact register traffic.
package gicsim

import (
	"fmt"
	"sync"

	"github.com/tinyrange/gicv3/internal/chipset"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/hv"
	"github.com/tinyrange/gicv3/internal/topology"
)

// Layout places the model's register frames in the physical address space.
type Layout struct {
	DistributorBase     uint64 `yaml:"gicd"`
	RedistributorBase   uint64 `yaml:"gicr"`
	RedistributorStride uint64 `yaml:"gicr_stride"`
	WakeAddr            uint64 `yaml:"wake"`
	Clusters            []int  `yaml:"clusters"`
}

// Params tune the model's behavior.
type Params struct {
	// Lines is the number of implemented INTIDs, a multiple of 32.
	Lines uint32 `yaml:"lines"`
	// ArchRev is reported through PIDR2.
	ArchRev uint32 `yaml:"arch_rev"`
	// RWPLatency is how many control register reads report a write still
	// pending after a tracked write. Negative values never complete.
	RWPLatency int `yaml:"rwp_latency"`
	// Asleep starts every redistributor with ProcessorSleep set.
	Asleep bool `yaml:"asleep"`
	// WakeStuck keeps ChildrenAsleep set after ProcessorSleep is cleared.
	WakeStuck bool `yaml:"wake_stuck"`
	// SRELocked makes ICC_SRE_EL1.SRE read-as-zero.
	SRELocked bool `yaml:"sre_locked"`
}

// DefaultParams describes a healthy GICv3 with 256 INTIDs.
func DefaultParams() Params {
	return Params{
		Lines:      256,
		ArchRev:    regs.ArchRevGICv3,
		RWPLatency: 1,
		Asleep:     true,
	}
}

// AccessKind classifies a recorded access.
type AccessKind int

const (
	MMIOWrite AccessKind = iota
	SysRead
	SysWrite
)

func (k AccessKind) String() string {
	switch k {
	case MMIOWrite:
		return "mmio-write"
	case SysRead:
		return "sys-read"
	case SysWrite:
		return "sys-write"
	default:
		return fmt.Sprintf("AccessKind(%d)", int(k))
	}
}

// Access is one recorded register access. MMIO reads are only counted,
// since poll loops would otherwise flood the log.
type Access struct {
	Kind  AccessKind
	CPU   int
	Addr  uint64
	Size  int
	Reg   regs.SysReg
	Value uint64
}

func (a Access) String() string {
	if a.Kind == MMIOWrite {
		return fmt.Sprintf("%s %#x/%d=%#x", a.Kind, a.Addr, a.Size, a.Value)
	}
	return fmt.Sprintf("%s cpu%d %s=%#x", a.Kind, a.CPU, a.Reg, a.Value)
}

// Machine is a complete simulated GICv3 platform.
type Machine struct {
	layout Layout
	params Params
	topo   *topology.Topology
	chip   *chipset.Chipset
	lines  *chipset.LineSet

	mu      sync.Mutex
	dist    *distributor
	redists []*redistributor
	cpus    []*CPUInterface
	wake    *wakeRegister
	eoi     []uint32
	sgis    []int

	logMu sync.Mutex
	log   []Access
	reads uint64
}

// New builds a machine. The register frames and wake register must not
// overlap.
func New(layout Layout, params Params) (*Machine, error) {
	if params.Lines < 64 || params.Lines > 1024 || params.Lines%32 != 0 {
		return nil, fmt.Errorf("gicsim: %d lines, want a multiple of 32 in [64, 1024]", params.Lines)
	}
	if layout.RedistributorStride < regs.RedistributorFrameSize {
		return nil, fmt.Errorf("gicsim: redistributor stride %#x too small", layout.RedistributorStride)
	}
	topo, err := topology.New(layout.Clusters)
	if err != nil {
		return nil, fmt.Errorf("gicsim: %w", err)
	}

	m := &Machine{layout: layout, params: params, topo: topo}
	m.dist = newDistributor(m, layout.DistributorBase)
	m.sgis = make([]int, topo.NumCPUs())

	b := chipset.NewBuilder()
	if err := b.RegisterDevice("gicd", chipset.MmioDevice(m.dist)); err != nil {
		return nil, fmt.Errorf("gicsim: %w", err)
	}
	for cpu := range topo.NumCPUs() {
		aff, err := topo.Affinity(cpu)
		if err != nil {
			return nil, fmt.Errorf("gicsim: %w", err)
		}
		rd := newRedistributor(m, cpu, aff, layout.RedistributorBase+uint64(cpu)*layout.RedistributorStride)
		m.redists = append(m.redists, rd)
		m.cpus = append(m.cpus, newCPUInterface(m, cpu, aff))
		if err := b.RegisterDevice(fmt.Sprintf("gicr%d", cpu), chipset.MmioDevice(rd)); err != nil {
			return nil, fmt.Errorf("gicsim: %w", err)
		}
	}
	if layout.WakeAddr != 0 {
		m.wake = &wakeRegister{m: m, addr: layout.WakeAddr}
		if err := b.RegisterDevice("wake", chipset.MmioDevice(m.wake)); err != nil {
			return nil, fmt.Errorf("gicsim: %w", err)
		}
	}

	m.chip, err = b.Build()
	if err != nil {
		return nil, fmt.Errorf("gicsim: %w", err)
	}
	m.lines = chipset.NewLineSet(m)
	return m, nil
}

// Topology returns the CPU topology the machine was built with.
func (m *Machine) Topology() *topology.Topology { return m.topo }

// CPU returns the system-register model of logical CPU n.
func (m *Machine) CPU(n int) *CPUInterface { return m.cpus[n] }

// NumCPUs returns the number of CPUs.
func (m *Machine) NumCPUs() int { return len(m.cpus) }

// Regions returns every mapped frame in address order.
func (m *Machine) Regions() []hv.MMIORegion { return m.chip.Regions() }

// Reset returns every device and CPU interface to its power-on state.
func (m *Machine) Reset() error {
	if err := m.chip.Reset(); err != nil {
		return fmt.Errorf("gicsim: %w", err)
	}
	m.mu.Lock()
	for _, c := range m.cpus {
		c.reset()
	}
	m.eoi = nil
	m.sgis = make([]int, len(m.cpus))
	m.mu.Unlock()
	m.ResetLog()
	return nil
}

// SetRWPLatency changes the write-pending latency for subsequent writes.
func (m *Machine) SetRWPLatency(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params.RWPLatency = n
}

func (m *Machine) access(addr uint64, data []byte, write bool) {
	if err := m.chip.HandleMMIO(addr, data, write); err != nil {
		panic(fmt.Sprintf("gicsim: %v", err))
	}
}

func (m *Machine) Read32(addr uint64) uint32 {
	var buf [4]byte
	m.access(addr, buf[:], false)
	m.countRead()
	return uint32(hv.ReadLE(buf[:]))
}

func (m *Machine) Write32(addr uint64, value uint32) {
	m.record(Access{Kind: MMIOWrite, CPU: -1, Addr: addr, Size: 4, Value: uint64(value)})
	var buf [4]byte
	hv.PutLE(buf[:], uint64(value))
	m.access(addr, buf[:], true)
}

func (m *Machine) Read64(addr uint64) uint64 {
	var buf [8]byte
	m.access(addr, buf[:], false)
	m.countRead()
	return hv.ReadLE(buf[:])
}

func (m *Machine) Write64(addr uint64, value uint64) {
	m.record(Access{Kind: MMIOWrite, CPU: -1, Addr: addr, Size: 8, Value: value})
	var buf [8]byte
	hv.PutLE(buf[:], value)
	m.access(addr, buf[:], true)
}

// SetIRQ latches an SPI line level into the distributor. It lets a
// chipset.LineSet drive the model.
func (m *Machine) SetIRQ(intid uint32, level bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intid < regs.SPIBase || intid >= m.params.Lines {
		return
	}
	w, bit := intid/32, regs.Bit32(intid)
	edge := m.dist.cfgr[intid/16]&regs.EdgeBit16(intid) != 0
	switch {
	case level:
		m.dist.pending[w] |= bit
	case !edge:
		m.dist.pending[w] &^= bit
	}
}

// Line returns an interrupt line wired to SPI intid.
func (m *Machine) Line(intid uint32) chipset.LineInterrupt {
	return m.lines.AllocateLine(intid)
}

// OnDeactivate registers fn to run whenever intid is deactivated on any CPU.
func (m *Machine) OnDeactivate(intid uint32, fn func()) {
	m.lines.RegisterEOICallback(intid, fn)
}

// SetPending makes intid pending, in cpu's redistributor for SGIs and PPIs.
func (m *Machine) SetPending(cpu int, intid uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if intid < regs.SPIBase {
		m.redists[cpu].pending |= regs.Bit32(intid)
		return
	}
	m.dist.pending[intid/32] |= regs.Bit32(intid)
}

func (m *Machine) raiseSGI(v uint64) {
	intid, cluster, targets := regs.DecodeSGI1R(v)
	for core := range regs.SGI1RMaxTargets {
		if targets&(1<<core) == 0 {
			continue
		}
		cpu, err := m.topo.CPU(topology.Affinity{Cluster: uint8(cluster), Core: uint8(core)})
		if err != nil {
			continue
		}
		m.redists[cpu].pending |= regs.Bit32(intid)
		m.sgis[cpu]++
	}
}

func (m *Machine) markActive(cpu int, intid uint32) {
	bit := regs.Bit32(intid)
	if intid < regs.SPIBase {
		m.redists[cpu].pending &^= bit
		m.redists[cpu].active |= bit
		return
	}
	if intid < m.params.Lines {
		m.dist.pending[intid/32] &^= bit
		m.dist.active[intid/32] |= bit
	}
}

func (m *Machine) clearActive(cpu int, intid uint32) {
	bit := regs.Bit32(intid)
	if intid < regs.SPIBase {
		m.redists[cpu].active &^= bit
		return
	}
	if intid < m.params.Lines {
		m.dist.active[intid/32] &^= bit
	}
}

func (m *Machine) flushEOI() {
	m.mu.Lock()
	done := m.eoi
	m.eoi = nil
	m.mu.Unlock()
	for _, intid := range done {
		m.lines.BroadcastEOI(intid)
	}
}

var _ chipset.InterruptSink = (*Machine)(nil)
