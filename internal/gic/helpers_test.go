package gic

import (
	"io"
	"log/slog"
	"testing"

	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/gicsim"
)

func testConfig(clusters ...int) Config {
	cfg := DefaultConfig()
	cfg.Clusters = clusters
	return cfg
}

func newTestSystem(t *testing.T, p gicsim.Params, cfg Config) (*Driver, *gicsim.Machine) {
	t.Helper()
	m, err := gicsim.New(gicsim.Layout{
		DistributorBase:     cfg.DistributorBase(),
		RedistributorBase:   cfg.RedistributorBase(0),
		RedistributorStride: cfg.RedistributorStride,
		WakeAddr:            cfg.ErratumWakeAddr,
		Clusters:            cfg.Clusters,
	}, p)
	if err != nil {
		t.Fatalf("gicsim.New: %v", err)
	}
	d, err := New(cfg, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, m
}

// bootAll runs the full bring-up on every CPU of the machine.
func bootAll(t *testing.T, d *Driver, m *gicsim.Machine) {
	t.Helper()
	if err := d.GlobalInit(m.CPU(0)); err != nil {
		t.Fatalf("GlobalInit: %v", err)
	}
	for n := 1; n < m.NumCPUs(); n++ {
		if err := d.PerCPUEarlyInit(m.CPU(n)); err != nil {
			t.Fatalf("PerCPUEarlyInit(%d): %v", n, err)
		}
	}
	for n := range m.NumCPUs() {
		if err := d.PerCPULateInit(m.CPU(n)); err != nil {
			t.Fatalf("PerCPULateInit(%d): %v", n, err)
		}
	}
}

func bootedSystem(t *testing.T, clusters ...int) (*Driver, *gicsim.Machine) {
	t.Helper()
	d, m := newTestSystem(t, gicsim.DefaultParams(), testConfig(clusters...))
	bootAll(t, d, m)
	m.ResetLog()
	return d, m
}

func sgi1rWrites(m *gicsim.Machine, cpu int) []uint64 {
	var out []uint64
	for _, a := range m.SysWrites(cpu, regs.SysRegSGI1R) {
		out = append(out, a.Value)
	}
	return out
}

// constBus answers every read with value and drops writes.
type constBus struct{ value uint32 }

func (b constBus) Read32(uint64) uint32   { return b.value }
func (b constBus) Write32(uint64, uint32) {}
func (b constBus) Read64(uint64) uint64   { return uint64(b.value) }
func (b constBus) Write64(uint64, uint64) {}

func newBusDriver(t *testing.T, bus Bus, clusters ...int) *Driver {
	t.Helper()
	d, err := New(testConfig(clusters...), bus)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d
}
