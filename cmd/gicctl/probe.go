package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/tinyrange/gicv3/internal/devmem"
	"github.com/tinyrange/gicv3/internal/gic"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/gicsim"
	"github.com/tinyrange/gicv3/internal/hv"
)

func runProbe(fs *flag.FlagSet, common *commonFlags, args []string, out io.Writer) error {
	sim := fs.Bool("sim", false, "probe the platform model instead of physical memory")
	mem := fs.String("mem", devmem.DefaultPath, "physical memory device")
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

	var bus gic.Bus
	if *sim {
		m, err := gicsim.New(cfg.layout(), cfg.Sim)
		if err != nil {
			return err
		}
		bus = m
	} else {
		b, err := devmem.Open([]hv.MMIORegion{{
			Address: cfg.GIC.DistributorBase(),
			Size:    regs.DistributorSize,
		}}, devmem.Options{Path: *mem})
		if err != nil {
			return err
		}
		defer b.Close()
		bus = b
	}

	res, err := gic.Probe(cfg.GIC, bus)
	if err != nil {
		return fmt.Errorf("probe %#x: %w", cfg.GIC.DistributorBase(), err)
	}
	return probeTable(out, res).write(out)
}

func probeTable(out io.Writer, res gic.ProbeResult) *table {
	t := newTable(out, "FIELD", "VALUE")
	t.add("architecture", fmt.Sprintf("GICv%d", res.ArchRev))
	t.add("vectors", fmt.Sprint(res.Vectors))
	t.add("cpus", fmt.Sprint(res.CPUNumber))
	t.add("affinity routing", fmt.Sprint(res.Affinity))
	t.add("enabled", fmt.Sprint(res.Enabled))
	t.add("implementer", fmt.Sprintf("%#08x", res.Implementer))
	return t
}
