package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/tinyrange/gicv3/internal/gic"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/gicsim"
	"github.com/tinyrange/gicv3/internal/hv"
	"golang.org/x/sync/errgroup"
)

// denyList stands in for the resource-protection layer.
type denyList struct {
	regions []hv.MMIORegion
}

func (l *denyList) DenyMMIO(r hv.MMIORegion) error {
	l.regions = append(l.regions, r)
	return nil
}

// bootPlatform builds the platform model and runs the full bring-up: the
// boot CPU through Discover, then every secondary concurrently. It returns
// a nil driver when an optional controller is absent.
func bootPlatform(cfg fileConfig, deny gic.DenyLister) (*gic.Driver, *gicsim.Machine, error) {
	m, err := gicsim.New(cfg.layout(), cfg.Sim)
	if err != nil {
		return nil, nil, err
	}
	d, err := gic.Discover(cfg.GIC, m, m.CPU(0), deny)
	if err != nil || d == nil {
		return nil, m, err
	}
	d.SetLogger(slog.Default().With("component", "gicv3"))

	var early errgroup.Group
	for n := 1; n < m.NumCPUs(); n++ {
		early.Go(func() error {
			if err := d.PerCPUEarlyInit(m.CPU(n)); err != nil {
				return fmt.Errorf("cpu %d early init: %w", n, err)
			}
			return nil
		})
	}
	if err := early.Wait(); err != nil {
		return nil, m, err
	}

	var late errgroup.Group
	for n := range m.NumCPUs() {
		late.Go(func() error {
			if err := d.PerCPULateInit(m.CPU(n)); err != nil {
				return fmt.Errorf("cpu %d late init: %w", n, err)
			}
			return nil
		})
	}
	if err := late.Wait(); err != nil {
		return nil, m, err
	}
	return d, m, nil
}

func runBoot(fs *flag.FlagSet, common *commonFlags, args []string, out io.Writer) error {
	shutdown := fs.Bool("shutdown", false, "power down the secondaries and the distributor afterwards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	done, err := common.setup()
	if err != nil {
		return err
	}
	defer done()

	cfg, err := loadConfig(common.config)
	if err != nil {
		return err
	}

	var deny denyList
	d, m, err := bootPlatform(cfg, &deny)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	if d == nil {
		fmt.Fprintf(out, "no GICv3 at %#x (optional)\n", cfg.GIC.Base)
		return nil
	}
	slog.Info("GICv3 online", "vectors", d.MaxVector(), "cpus", d.Online().Count())

	fmt.Fprintf(out, "distributor %#x ctlr=%#x vectors=%d\n\n", cfg.GIC.DistributorBase(), m.DistributorCtlr(), d.MaxVector())
	if err := cpuTable(out, d, m).write(out); err != nil {
		return err
	}

	fmt.Fprintf(out, "\ndenied MMIO:\n")
	for _, r := range deny.regions {
		fmt.Fprintf(out, "  %s\n", r)
	}

	if *shutdown {
		for n := m.NumCPUs() - 1; n > 0; n-- {
			if err := d.PrepareCPUForShutdown(m.CPU(n)); err != nil {
				return fmt.Errorf("shutdown cpu %d: %w", n, err)
			}
		}
		d.GlobalShutdown()
		fmt.Fprintf(out, "\nshut down, online=%s ctlr=%#x\n", d.Online(), m.DistributorCtlr())
	}
	return nil
}

func cpuTable(out io.Writer, d *gic.Driver, m *gicsim.Machine) *table {
	t := newTable(out, "CPU", "AFFINITY", "ONLINE", "WAKER", "IGRPEN1", "SGI/PPI ENABLE")
	online := d.Online()
	for n := range m.NumCPUs() {
		c := m.CPU(n)
		state := "yes"
		if !online.Has(n) {
			state = t.faint("no")
		}
		t.add(
			fmt.Sprint(n),
			c.Affinity().String(),
			state,
			fmt.Sprintf("%#x", m.Waker(n)),
			fmt.Sprint(c.SysReg(regs.SysRegIGRPEN1)),
			fmt.Sprintf("%#08x", m.RedistributorEnabled(n)),
		)
	}
	return t
}
