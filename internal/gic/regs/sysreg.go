package regs

import "fmt"

// SysReg identifies an ICC system register of the CPU interface. These are
// not memory mapped; the platform reads and writes them on the executing CPU.
type SysReg uint32

const (
	SysRegInvalid SysReg = iota

	SysRegSRE     // ICC_SRE_EL1
	SysRegPMR     // ICC_PMR_EL1
	SysRegCTLR    // ICC_CTLR_EL1
	SysRegIGRPEN1 // ICC_IGRPEN1_EL1
	SysRegIAR1    // ICC_IAR1_EL1
	SysRegEOIR1   // ICC_EOIR1_EL1
	SysRegDIR     // ICC_DIR_EL1
	SysRegSGI1R   // ICC_SGI1R_EL1
)

func (r SysReg) String() string {
	switch r {
	case SysRegSRE:
		return "ICC_SRE_EL1"
	case SysRegPMR:
		return "ICC_PMR_EL1"
	case SysRegCTLR:
		return "ICC_CTLR_EL1"
	case SysRegIGRPEN1:
		return "ICC_IGRPEN1_EL1"
	case SysRegIAR1:
		return "ICC_IAR1_EL1"
	case SysRegEOIR1:
		return "ICC_EOIR1_EL1"
	case SysRegDIR:
		return "ICC_DIR_EL1"
	case SysRegSGI1R:
		return "ICC_SGI1R_EL1"
	default:
		return fmt.Sprintf("SysReg(%d)", uint32(r))
	}
}

// ICC register fields.
const (
	ICCSRESRE = 1 << 0

	// ICCPMRAcceptAll lets every priority through the mask.
	ICCPMRAcceptAll = 0xFF

	// ICCCTLREOIMode splits priority drop (EOIR) from deactivation (DIR).
	ICCCTLREOIMode = 1 << 1

	ICCIGRPEN1Enable = 1 << 0
)

// ICC_SGI1R_EL1 fields.
const (
	SGI1RTargetListMask = 0xFFFF
	SGI1RAff1Shift      = 16
	SGI1RIntIDShift     = 24
	SGI1RIntIDMask      = 0xF
	SGI1RAff2Shift      = 32
	SGI1RIRM            = 1 << 40
	SGI1RAff3Shift      = 48

	// SGI1RMaxTargets is how many cores one write can address per cluster
	// without the range selector field.
	SGI1RMaxTargets = 16
)

// SGI1R composes an ICC_SGI1R_EL1 value that raises intid on every core
// selected by targets within the given cluster.
func SGI1R(intid uint32, cluster uint32, targets uint16) uint64 {
	return uint64(intid&SGI1RIntIDMask)<<SGI1RIntIDShift |
		uint64(cluster&0xFF)<<SGI1RAff1Shift |
		uint64(targets)
}

// DecodeSGI1R splits an ICC_SGI1R_EL1 value into its INTID, cluster and
// target list.
func DecodeSGI1R(v uint64) (intid uint32, cluster uint32, targets uint16) {
	intid = uint32(v>>SGI1RIntIDShift) & SGI1RIntIDMask
	cluster = uint32(v>>SGI1RAff1Shift) & 0xFF
	targets = uint16(v & SGI1RTargetListMask)
	return
}
