package chipset

import "sync"

// InterruptSink receives interrupt assertions for a given INTID.
type InterruptSink interface {
	SetIRQ(intid uint32, level bool)
}

// LineSet manages interrupt lines and EOI callbacks.
type LineSet struct {
	mu sync.Mutex

	sink InterruptSink

	lines map[uint32]*lineState
	eoi   map[uint32][]func()
}

// NewLineSet builds a LineSet that forwards assertions to the provided sink.
func NewLineSet(sink InterruptSink) *LineSet {
	if sink == nil {
		sink = noopInterruptSink{}
	}
	return &LineSet{
		sink:  sink,
		lines: make(map[uint32]*lineState),
		eoi:   make(map[uint32][]func()),
	}
}

// AllocateLine returns a LineInterrupt handle for the given INTID.
func (l *LineSet) AllocateLine(intid uint32) LineInterrupt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.lines[intid]; !ok {
		l.lines[intid] = &lineState{}
	}
	return &lineHandle{owner: l, intid: intid}
}

// RegisterEOICallback registers a callback for the given INTID.
// The callback is invoked when BroadcastEOI is called with the same INTID.
func (l *LineSet) RegisterEOICallback(intid uint32, fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eoi[intid] = append(l.eoi[intid], fn)
}

// BroadcastEOI notifies listeners that the INTID was deactivated.
func (l *LineSet) BroadcastEOI(intid uint32) {
	l.mu.Lock()
	callbacks := append([]func(){}, l.eoi[intid]...)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Level reports the last level driven on intid.
func (l *LineSet) Level(intid uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.lines[intid]
	return state != nil && state.level
}

type lineState struct {
	level bool
}

type lineHandle struct {
	owner *LineSet
	intid uint32
}

func (h *lineHandle) SetLevel(high bool) {
	h.owner.setLevel(h.intid, high)
}

func (h *lineHandle) PulseInterrupt() {
	h.owner.pulse(h.intid)
}

func (l *LineSet) setLevel(intid uint32, high bool) {
	l.mu.Lock()
	state := l.lines[intid]
	if state == nil {
		state = &lineState{}
		l.lines[intid] = state
	}
	changed := state.level != high
	state.level = high
	l.mu.Unlock()

	if changed {
		l.sink.SetIRQ(intid, high)
	}
}

func (l *LineSet) pulse(intid uint32) {
	l.sink.SetIRQ(intid, true)
	l.sink.SetIRQ(intid, false)
}

type noopInterruptSink struct{}

func (noopInterruptSink) SetIRQ(uint32, bool) {}
