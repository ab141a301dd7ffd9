package gic

import (
	"fmt"

	"github.com/tinyrange/gicv3/internal/debug"
	"github.com/tinyrange/gicv3/internal/gic/regs"
)

// maxPollTries bounds every register-write-pending poll. The bound counts
// reads rather than time because no timer is guaranteed to work before the
// scheduler runs or inside an interrupt frame.
const maxPollTries = 1_000_000

// waitRWP polls the RWP bit of the control register at ctlr. When the bound
// runs out it records a diagnostic and carries on. cpu is -1 for the
// distributor.
func (d *Driver) waitRWP(ctlr uint64, rwp uint32, frame string, cpu int) {
	for range maxPollTries {
		if d.bus.Read32(ctlr)&rwp == 0 {
			return
		}
	}
	d.stats.rwpTimeouts.Add(1)
	if cpu >= 0 {
		frame = fmt.Sprintf("%s%d", frame, cpu)
	}
	debug.Writef(srcRWPTimeout, "%s ctlr=%#x after %d tries", frame, ctlr, maxPollTries)
	d.log.Warn("register write still pending, continuing",
		"frame", frame, "ctlr", fmt.Sprintf("%#x", ctlr), "tries", maxPollTries)
}

func (d *Driver) waitDistributorRWP() {
	d.waitRWP(d.gicd+regs.GICDCtlr, regs.GICDCtlrRWP, "distributor", -1)
}

func (d *Driver) waitRedistributorRWP(cpu int) {
	d.waitRWP(d.redist(cpu)+regs.GICRCtlr, regs.GICRCtlrRWP, "redistributor", cpu)
}

// wakeRedistributor clears ProcessorSleep and waits for ChildrenAsleep to
// drop, with the same bounded give-up as RWP.
func (d *Driver) wakeRedistributor(cpu int) {
	waker := d.redist(cpu) + regs.GICRWaker
	v := d.bus.Read32(waker)
	if v&regs.GICRWakerProcessorSleep != 0 {
		d.bus.Write32(waker, v&^regs.GICRWakerProcessorSleep)
	}
	for range maxPollTries {
		if d.bus.Read32(waker)&regs.GICRWakerChildrenAsleep == 0 {
			return
		}
	}
	d.stats.wakeTimeouts.Add(1)
	debug.Writef(srcWakeTimeout, "cpu=%d waker=%#x", cpu, waker)
	d.log.Warn("redistributor still asleep, continuing", "cpu", cpu)
}
