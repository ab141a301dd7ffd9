package chipset

import (
	"errors"
	"testing"

	"github.com/tinyrange/gicv3/internal/hv"
)

type regDevice struct {
	region hv.MMIORegion
	value  uint64
	resets int
}

func (d *regDevice) MMIORegions() []hv.MMIORegion { return []hv.MMIORegion{d.region} }

func (d *regDevice) ReadMMIO(addr uint64, data []byte) error {
	hv.PutLE(data, d.value)
	return nil
}

func (d *regDevice) WriteMMIO(addr uint64, data []byte) error {
	d.value = hv.ReadLE(data)
	return nil
}

func (d *regDevice) Reset() error {
	d.resets++
	d.value = 0
	return nil
}

func TestChipsetDispatch(t *testing.T) {
	a := &regDevice{region: hv.MMIORegion{Address: 0x1000, Size: 0x100}}
	b := &regDevice{region: hv.MMIORegion{Address: 0x2000, Size: 0x100}}

	builder := NewBuilder()
	if err := builder.RegisterDevice("a", MmioDevice(a)); err != nil {
		t.Fatalf("RegisterDevice(a): %v", err)
	}
	if err := builder.RegisterDevice("b", MmioDevice(b)); err != nil {
		t.Fatalf("RegisterDevice(b): %v", err)
	}
	cs, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := cs.HandleMMIO(0x2004, []byte{0xef, 0xbe, 0, 0}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b.value != 0xbeef || a.value != 0 {
		t.Fatalf("a=%#x b=%#x, want a=0 b=0xbeef", a.value, b.value)
	}

	buf := make([]byte, 4)
	if err := cs.HandleMMIO(0x2000, buf, false); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := hv.ReadLE(buf); got != 0xbeef {
		t.Fatalf("read = %#x, want 0xbeef", got)
	}

	if err := cs.HandleMMIO(0x3000, buf, false); !errors.Is(err, hv.ErrUnmapped) {
		t.Fatalf("unmapped read err = %v, want ErrUnmapped", err)
	}
	// Straddling the end of a region is not contained by it.
	if err := cs.HandleMMIO(0x10fe, buf, false); !errors.Is(err, hv.ErrUnmapped) {
		t.Fatalf("straddling read err = %v, want ErrUnmapped", err)
	}

	if err := cs.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if a.resets != 1 || b.resets != 1 || b.value != 0 {
		t.Fatalf("reset counts a=%d b=%d value=%#x", a.resets, b.resets, b.value)
	}

	regions := cs.Regions()
	if len(regions) != 2 || regions[0].Address != 0x1000 || regions[1].Address != 0x2000 {
		t.Fatalf("Regions = %v", regions)
	}
}

func TestBuilderRejectsOverlap(t *testing.T) {
	builder := NewBuilder()
	if err := builder.RegisterDevice("a", MmioDevice(&regDevice{region: hv.MMIORegion{Address: 0x1000, Size: 0x100}})); err != nil {
		t.Fatalf("RegisterDevice(a): %v", err)
	}
	if err := builder.RegisterDevice("b", MmioDevice(&regDevice{region: hv.MMIORegion{Address: 0x10f0, Size: 0x100}})); err == nil {
		t.Fatalf("overlapping device registered")
	}
	if err := builder.RegisterDevice("a", MmioDevice(&regDevice{region: hv.MMIORegion{Address: 0x4000, Size: 0x10}})); err == nil {
		t.Fatalf("duplicate name registered")
	}
	if err := builder.WithMmioRegion(0x5000, 0, nil); err == nil {
		t.Fatalf("nil handler accepted")
	}
}

type recordingSink struct {
	events []string
}

func (s *recordingSink) SetIRQ(_ uint32, level bool) {
	state := "low"
	if level {
		state = "high"
	}
	s.events = append(s.events, state)
}

func TestLineSet(t *testing.T) {
	sink := &recordingSink{}
	lines := NewLineSet(sink)
	line := lines.AllocateLine(40)

	line.SetLevel(true)
	line.SetLevel(true)
	if !lines.Level(40) {
		t.Fatalf("Level(40) = false after SetLevel(true)")
	}
	line.SetLevel(false)
	line.PulseInterrupt()

	want := []string{"high", "low", "high", "low"}
	if len(sink.events) != len(want) {
		t.Fatalf("events = %v, want %v", sink.events, want)
	}
	for i := range want {
		if sink.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", sink.events, want)
		}
	}

	fired := 0
	lines.RegisterEOICallback(40, func() { fired++ })
	lines.BroadcastEOI(41)
	lines.BroadcastEOI(40)
	if fired != 1 {
		t.Fatalf("EOI callback fired %d times, want 1", fired)
	}
}

func TestLineInterruptFromFunc(t *testing.T) {
	var levels []bool
	line := LineInterruptFromFunc(func(l bool) { levels = append(levels, l) })
	line.PulseInterrupt()
	if len(levels) != 2 || !levels[0] || levels[1] {
		t.Fatalf("levels = %v, want [true false]", levels)
	}
	LineInterruptDetached().PulseInterrupt()
}
