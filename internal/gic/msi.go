package gic

import "fmt"

// MSIBlock is a range of message-signaled interrupts. This controller
// generation has no ITS, so no block is ever handed out.
type MSIBlock struct {
	BaseIRQ    uint32
	NumIRQ     uint32
	TargetAddr uint64
	TargetData uint32
}

// MSIHandler is invoked for one interrupt of an MSI block.
type MSIHandler func(vector uint32)

// MSIIsSupported reports false. Callers check it before any other MSI call.
func (d *Driver) MSIIsSupported() bool { return false }

// MSIAllocBlock always fails with ErrNotSupported.
func (d *Driver) MSIAllocBlock(count uint32, can64Bit, isMSIX bool) (*MSIBlock, error) {
	return nil, fmt.Errorf("%w: msi block of %d", ErrNotSupported, count)
}

// MSIFreeBlock panics: no block can have been allocated.
func (d *Driver) MSIFreeBlock(block *MSIBlock) {
	panic("gicv3: MSIFreeBlock without MSI support")
}

// MSIRegisterHandler panics: there is no MSI support.
func (d *Driver) MSIRegisterHandler(block *MSIBlock, index uint32, h MSIHandler) {
	panic("gicv3: MSIRegisterHandler without MSI support")
}

// MSIMaskUnmask panics: there is no MSI support.
func (d *Driver) MSIMaskUnmask(block *MSIBlock, index uint32, mask bool) {
	panic("gicv3: MSIMaskUnmask without MSI support")
}
