package debug

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readMemory(t testing.TB, mem Memory) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(mem.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func TestDebug(t *testing.T) {
	mem, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	Write("test", "hello, world")
	WriteBytes("raw", []byte{1, 2, 3})
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader := readMemory(t, mem)
	var seen []Entry
	if err := reader.Each(func(e Entry) error {
		seen = append(seen, e)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(seen))
	}
	if seen[0].Source != "test" || string(seen[0].Data) != "hello, world" || seen[0].Kind != DebugKindString {
		t.Fatalf("entry 0 = %+v", seen[0])
	}
	if seen[1].Source != "raw" || !bytes.Equal(seen[1].Data, []byte{1, 2, 3}) || seen[1].Kind != DebugKindBytes {
		t.Fatalf("entry 1 = %+v", seen[1])
	}
}

func TestDebugClosedDropsWrites(t *testing.T) {
	if Enabled() {
		t.Fatalf("log unexpectedly open")
	}
	// Must not panic or allocate a writer.
	Writef("test", "dropped %d", 1)
	if Enabled() {
		t.Fatalf("Writef opened the log")
	}
}

func TestDebugTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := OpenFile(path); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	Writef("gicv3 rwp timeout", "ctlr=%#x", 0x8000000)
	Write("other", "x")
	Writef("gicv3 rwp timeout", "ctlr=%#x", 0x80a0000)
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReaderFromFile(path)
	if err != nil {
		t.Fatalf("NewReaderFromFile: %v", err)
	}
	if got := r.Count("gicv3 rwp timeout"); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
	if got := r.Count(""); got != 3 {
		t.Fatalf("Count(all) = %d, want 3", got)
	}
	sources := r.Sources()
	if len(sources) != 2 || sources[0] != "gicv3 rwp timeout" || sources[1] != "other" {
		t.Fatalf("Sources = %v", sources)
	}
}

func TestDebugMessageOrdering(t *testing.T) {
	mem, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer Close()

	for i := 0; i < 10; i++ {
		Write("test", fmt.Sprintf("hello, world %d", i))
	}

	var seen []string
	if err := readMemory(t, mem).Each(func(e Entry) error {
		seen = append(seen, string(e.Data))
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if len(seen) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(seen))
	}
	for i := range 10 {
		if want := fmt.Sprintf("hello, world %d", i); seen[i] != want {
			t.Fatalf("entry %d = %q, want %q", i, seen[i], want)
		}
	}
}

func TestDebugTimestampOrdering(t *testing.T) {
	mem, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer Close()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				time.Sleep(time.Millisecond * time.Duration(i))
				Write("test", fmt.Sprintf("hello, world %d", i))
			}
		}()
	}
	wg.Wait()

	var timestamps []time.Time
	if err := readMemory(t, mem).Each(func(e Entry) error {
		timestamps = append(timestamps, e.Time)
		return nil
	}); err != nil {
		t.Fatalf("Each: %v", err)
	}

	if len(timestamps) != 40 {
		t.Fatalf("expected 40 timestamps, got %d", len(timestamps))
	}
	for i := range len(timestamps) - 1 {
		if timestamps[i].After(timestamps[i+1]) {
			t.Fatalf("timestamps out of order at index %d: %v after %v", i, timestamps[i], timestamps[i+1])
		}
	}
}

func BenchmarkWriteString(b *testing.B) {
	if _, err := OpenMemory(); err != nil {
		b.Fatalf("OpenMemory: %v", err)
	}
	defer Close()

	for b.Loop() {
		Write("test", "hello, world")
	}
}

func BenchmarkReadString(b *testing.B) {
	mem, err := OpenMemory()
	if err != nil {
		b.Fatalf("OpenMemory: %v", err)
	}
	for range 10 {
		Write("test", "hello, world")
	}
	Close()

	for b.Loop() {
		r := readMemory(b, mem)
		if err := r.Each(func(Entry) error { return nil }); err != nil {
			b.Fatalf("Each: %v", err)
		}
	}
}
