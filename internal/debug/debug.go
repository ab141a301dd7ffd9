package debug

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Debug is a lock-free binary event log. Writers reserve space by atomically
// advancing the file offset, so events may be recorded from any CPU context
// (interrupt handlers included) without taking a lock.
//
// Each entry is:
//   - 2 bytes kind (0 = invalid, 1 = bytes, 2 = string)
//   - 2 bytes source length
//   - 4 bytes message length
//   - 8 bytes timestamp (nanoseconds since epoch)
//   - sourceLength bytes source
//   - messageLength bytes message

const headerSize = 16

type write struct {
	data []byte
}

type logStructuredBuffer struct {
	data    sync.Map
	maxSize atomic.Int64
}

func (b *logStructuredBuffer) WriteAt(p []byte, off int64) (n int, err error) {
	b.data.Store(off, write{data: append([]byte{}, p...)})
	end := int64(len(p)) + off
	for {
		val := b.maxSize.Load()
		if val >= end || b.maxSize.CompareAndSwap(val, end) {
			break
		}
	}
	return len(p), nil
}

func (b *logStructuredBuffer) Close() error {
	return nil
}

// Bytes assembles the buffer into a contiguous log image.
func (b *logStructuredBuffer) Bytes() []byte {
	data := make([]byte, b.maxSize.Load())
	b.data.Range(func(key, value any) bool {
		off := key.(int64)
		copy(data[off:], value.(write).data)
		return true
	})
	return data
}

type Writer interface {
	io.WriterAt
	io.Closer
}

type writer struct {
	w Writer
}

var (
	fh     atomic.Pointer[writer]
	offset atomic.Uint64
)

func OpenFile(filename string) error {
	// Truncate to ensure successive runs don't leave stale trailing entries.
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	return Open(f)
}

// The error is a warning, not an error. It indicates possible data loss.
func Open(w Writer) error {
	offset.Store(0)
	if fh.Swap(&writer{w: w}) != nil {
		return fmt.Errorf("debug: already open, discarded old writer")
	}
	return nil
}

// Memory is an in-memory log opened with OpenMemory.
type Memory interface {
	// Bytes returns the log image written so far.
	Bytes() []byte
}

func OpenMemory() (Memory, error) {
	mem := &logStructuredBuffer{}
	if err := Open(mem); err != nil {
		return mem, err
	}
	return mem, nil
}

func Close() error {
	fh := fh.Swap(nil)
	if fh != nil {
		if err := fh.w.Close(); err != nil {
			return err
		}
	}
	offset.Store(0)
	return nil
}

// Enabled reports whether a log is open.
func Enabled() bool { return fh.Load() != nil }

type DebugKind uint16

const (
	DebugKindInvalid DebugKind = iota
	DebugKindBytes
	DebugKindString
)

func encodeHeader(kind DebugKind, source string, data []byte) ([]byte, int64) {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(header[0:2], uint16(kind))
	binary.LittleEndian.PutUint16(header[2:4], uint16(len(source)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(data)))
	binary.LittleEndian.PutUint64(header[8:16], uint64(time.Now().UnixNano()))
	return header, int64(len(source) + len(data) + headerSize)
}

func decodeHeader(header [headerSize]byte) (kind DebugKind, sourceLength uint16, dataLength uint32, ts int64) {
	kind = DebugKind(binary.LittleEndian.Uint16(header[0:2]))
	sourceLength = binary.LittleEndian.Uint16(header[2:4])
	dataLength = binary.LittleEndian.Uint32(header[4:8])
	ts = int64(binary.LittleEndian.Uint64(header[8:16]))
	return
}

func writeBytes(kind DebugKind, source string, data []byte) {
	fh := fh.Load()
	if fh == nil {
		return
	}

	header, size := encodeHeader(kind, source, data)
	off := int64(offset.Add(uint64(size)) - uint64(size))
	entry := make([]byte, 0, size)
	entry = append(entry, header...)
	entry = append(entry, source...)
	entry = append(entry, data...)
	if _, err := fh.w.WriteAt(entry, off); err != nil {
		panic(err)
	}
}

func WriteBytes(source string, data []byte) {
	writeBytes(DebugKindBytes, source, data)
}

func Write(source string, data string) {
	writeBytes(DebugKindString, source, []byte(data))
}

func Writef(source string, format string, args ...any) {
	if fh.Load() == nil {
		return
	}
	writeBytes(DebugKindString, source, fmt.Appendf(nil, format, args...))
}

// Entry is one decoded log record.
type Entry struct {
	Time   time.Time
	Kind   DebugKind
	Source string
	Data   []byte
}

// Reader holds a decoded log in write order.
type Reader struct {
	entries []Entry
}

// NewReader decodes every entry of a log stream.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	ret := &Reader{}
	for {
		var header [headerSize]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("debug: read header: %w", err)
		}
		kind, sourceLength, dataLength, ts := decodeHeader(header)
		if kind == DebugKindInvalid {
			return nil, fmt.Errorf("debug: invalid header")
		}
		body := make([]byte, int(sourceLength)+int(dataLength))
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("debug: read entry: %w", err)
		}
		ret.entries = append(ret.entries, Entry{
			Time:   time.Unix(0, ts),
			Kind:   kind,
			Source: string(body[:sourceLength]),
			Data:   body[sourceLength:],
		})
	}
	// Concurrent writers may land slightly out of timestamp order.
	sort.SliceStable(ret.entries, func(i, j int) bool {
		return ret.entries[i].Time.Before(ret.entries[j].Time)
	})
	return ret, nil
}

func NewReaderFromFile(filename string) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return NewReader(f)
}

// Each iterates over all entries in timestamp order.
func (r *Reader) Each(fn func(e Entry) error) error {
	for _, e := range r.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of entries written by source, or all entries when
// source is empty.
func (r *Reader) Count(source string) int {
	if source == "" {
		return len(r.entries)
	}
	n := 0
	for _, e := range r.entries {
		if e.Source == source {
			n++
		}
	}
	return n
}

// Sources lists distinct sources in first-seen order.
func (r *Reader) Sources() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range r.entries {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		out = append(out, e.Source)
	}
	return out
}
