package gicsim

import "github.com/tinyrange/gicv3/internal/hv"

// wakeRegister models the always-on vendor register used to wake a
// powered-down core. It counts every set-then-clear of each bit.
type wakeRegister struct {
	m    *Machine
	addr uint64

	value  uint32
	pulses [32]int
}

func (w *wakeRegister) Reset() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.value = 0
	w.pulses = [32]int{}
	return nil
}

func (w *wakeRegister) MMIORegions() []hv.MMIORegion {
	return []hv.MMIORegion{{Address: w.addr, Size: 4}}
}

func (w *wakeRegister) ReadMMIO(addr uint64, data []byte) error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	hv.PutLE(data, uint64(w.value))
	return nil
}

func (w *wakeRegister) WriteMMIO(addr uint64, data []byte) error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	next := uint32(hv.ReadLE(data))
	cleared := w.value &^ next
	for bit := range 32 {
		if cleared&(1<<bit) != 0 {
			w.pulses[bit]++
		}
	}
	w.value = next
	return nil
}

var _ hv.MemoryMappedIODevice = (*wakeRegister)(nil)
