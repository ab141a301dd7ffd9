package hv

import "encoding/binary"

// ReadLE decodes a little-endian MMIO payload of up to 8 bytes.
func ReadLE(data []byte) uint64 {
	if len(data) >= 8 {
		return binary.LittleEndian.Uint64(data)
	}
	var tmp [8]byte
	copy(tmp[:], data)
	return binary.LittleEndian.Uint64(tmp[:])
}

// PutLE encodes value into data as a little-endian MMIO payload, truncating
// to len(data).
func PutLE(data []byte, value uint64) {
	if len(data) >= 8 {
		binary.LittleEndian.PutUint64(data, value)
		return
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], value)
	copy(data, tmp[:len(data)])
}
