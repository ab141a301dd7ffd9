package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/gicv3/internal/gic"
	"github.com/tinyrange/gicv3/internal/gic/regs"
	"github.com/tinyrange/gicv3/internal/gicsim"
)

type benchResult struct {
	iterations int
	handled    uint64
	elapsed    time.Duration
	stats      gic.Stats
}

// benchLoop pulses an SPI routed to CPU 0, dispatches it, then sends a
// reschedule IPI from CPU 0 to every other CPU and dispatches each.
func benchLoop(d *gic.Driver, m *gicsim.Machine, n int, step func()) (benchResult, error) {
	const spi = regs.SPIBase + 8
	if err := d.Configure(spi, gic.TriggerEdge, gic.PolarityActiveHigh); err != nil {
		return benchResult{}, err
	}
	if err := d.Unmask(spi); err != nil {
		return benchResult{}, err
	}

	var handled uint64
	d.RegisterHandlerTable(gic.HandlerTableFunc(func(uint32) (gic.EOIPolicy, bool) {
		handled++
		return gic.DeactivateNow, true
	}))
	defer d.RegisterHandlerTable(nil)

	line := m.Line(spi)
	others := d.Online() &^ gic.MaskOf(0)
	start := time.Now()
	for range n {
		line.PulseInterrupt()
		d.HandleIRQ(m.CPU(0))

		if others != 0 {
			if err := d.SendIPI(m.CPU(0), others, gic.IPIReschedule); err != nil {
				return benchResult{}, err
			}
			for cpu := 1; cpu < m.NumCPUs(); cpu++ {
				if others.Has(cpu) {
					d.HandleIRQ(m.CPU(cpu))
				}
			}
		}
		// The access log grows with every write.
		m.ResetLog()
		step()
	}
	return benchResult{
		iterations: n,
		handled:    handled,
		elapsed:    time.Since(start),
		stats:      d.Stats(),
	}, nil
}

func runBench(fs *flag.FlagSet, common *commonFlags, args []string, out io.Writer) error {
	n := fs.Int("n", 10000, "iterations")
	quiet := fs.Bool("q", false, "no progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 {
		return fmt.Errorf("bench: -n must be positive")
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
	d, m, err := bootPlatform(cfg, nil)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	if d == nil {
		return fmt.Errorf("bench: no GICv3 at %#x", cfg.GIC.Base)
	}

	step := func() {}
	if !*quiet && isTerminal(out) {
		pb := progressbar.Default(int64(*n))
		defer pb.Close()
		step = func() { pb.Add(1) }
	}

	res, err := benchLoop(d, m, *n, step)
	if err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	return benchTable(out, res).write(out)
}

func benchTable(out io.Writer, res benchResult) *table {
	t := newTable(out, "METRIC", "VALUE")
	t.add("iterations", fmt.Sprint(res.iterations))
	t.add("handled", fmt.Sprint(res.handled))
	t.add("elapsed", res.elapsed.String())
	if res.handled > 0 {
		t.add("per interrupt", (res.elapsed / time.Duration(res.handled)).String())
	}
	t.add("sgi writes", fmt.Sprint(res.stats.SGIWrites))
	t.add("spurious", fmt.Sprint(res.stats.Spurious))
	t.add("rwp timeouts", fmt.Sprint(res.stats.RWPTimeouts))
	t.add("erratum pulses", fmt.Sprint(res.stats.ErratumPulses))
	for cpu, c := range res.stats.IRQs {
		t.add(fmt.Sprintf("irqs cpu%d", cpu), fmt.Sprint(c))
	}
	return t
}
