// Package regs describes the GICv3 register layout: distributor and
// redistributor offsets, the bitfields the driver relies on, and the ICC
// system registers of the CPU interface.
package regs

// Distributor (GICD) offsets, relative to the distributor base.
const (
	GICDCtlr       = 0x0000 // Distributor Control Register
	GICDTyper      = 0x0004 // Interrupt Controller Type Register
	GICDIidr       = 0x0008 // Distributor Implementer Identification Register
	GICDIgroupr    = 0x0080 // Interrupt Group Registers
	GICDIsenabler  = 0x0100 // Interrupt Set-Enable Registers
	GICDIcenabler  = 0x0180 // Interrupt Clear-Enable Registers
	GICDIspendr    = 0x0200 // Interrupt Set-Pending Registers
	GICDIcpendr    = 0x0280 // Interrupt Clear-Pending Registers
	GICDIsactiver  = 0x0300 // Interrupt Set-Active Registers
	GICDIcactiver  = 0x0380 // Interrupt Clear-Active Registers
	GICDIpriorityr = 0x0400 // Interrupt Priority Registers
	GICDIcfgr      = 0x0C00 // Interrupt Configuration Registers
	GICDIgrpmodr   = 0x0D00 // Interrupt Group Modifier Registers
	GICDIrouter    = 0x6000 // Interrupt Routing Registers (64-bit, INTID >= 32)
	GICDPidr2      = 0xFFE8 // Peripheral ID 2

	// DistributorSize is the size of the distributor frame.
	DistributorSize = 0x10000
)

// GICD_CTLR fields.
const (
	GICDCtlrEnableGrp0   = 1 << 0
	GICDCtlrEnableGrp1NS = 1 << 1
	GICDCtlrEnableGrp1S  = 1 << 2
	GICDCtlrARE          = 1 << 4
	GICDCtlrRWP          = 1 << 31
)

// GICD_TYPER fields.
const (
	GICDTyperITLinesMask = 0x1f
	GICDTyperCPUShift    = 5
	GICDTyperCPUMask     = 0x7
)

// Peripheral ID 2 architecture revision.
const (
	PIDR2ArchRevShift = 4
	PIDR2ArchRevMask  = 0xf

	ArchRevGICv1 = 0x1
	ArchRevGICv2 = 0x2
	ArchRevGICv3 = 0x3
	ArchRevGICv4 = 0x4
)

// Redistributor (GICR) offsets, relative to one CPU's redistributor base.
// Each redistributor is an RD_base frame followed by an SGI_base frame.
const (
	GICRCtlr  = 0x0000 // Redistributor Control Register
	GICRIidr  = 0x0004 // Implementer Identification Register
	GICRTyper = 0x0008 // Redistributor Type Register (64-bit)
	GICRWaker = 0x0014 // Redistributor Wake Register
	GICRPidr2 = 0xFFE8 // Peripheral ID 2 (RD_base)

	GICRSGIOffset  = 0x10000
	GICRIgroupr0   = GICRSGIOffset + 0x0080
	GICRIsenabler0 = GICRSGIOffset + 0x0100
	GICRIcenabler0 = GICRSGIOffset + 0x0180
	GICRIspendr0   = GICRSGIOffset + 0x0200
	GICRIcpendr0   = GICRSGIOffset + 0x0280
	GICRIsactiver0 = GICRSGIOffset + 0x0300
	GICRIcactiver0 = GICRSGIOffset + 0x0380
	GICRIpriorityr = GICRSGIOffset + 0x0400
	GICRIcfgr0     = GICRSGIOffset + 0x0C00
	GICRIcfgr1     = GICRSGIOffset + 0x0C04

	// RedistributorFrameSize covers RD_base and SGI_base.
	RedistributorFrameSize = 0x20000
)

// GICR_CTLR, GICR_WAKER and GICR_TYPER fields.
const (
	GICRCtlrRWP = 1 << 3

	GICRWakerProcessorSleep = 1 << 1
	GICRWakerChildrenAsleep = 1 << 2

	GICRTyperLast          = 1 << 4
	GICRTyperProcNumShift  = 8
	GICRTyperAffinityShift = 32
)

// Interrupt ID bands.
const (
	SGIBase = 0
	PPIBase = 16
	SPIBase = 32

	// PPIMask selects the PPI bits of a banked 32-bit SGI/PPI register.
	PPIMask = 1<<SPIBase - 1<<PPIBase

	// IntIDSpurious is the lowest special INTID returned by an acknowledge;
	// 1022 and 1023 both mean no interrupt needs handling.
	IntIDSpurious = 0x3FE
	IntIDNone     = 0x3FF

	// IntIDMask selects the INTID field of ICC_IAR1_EL1.
	IntIDMask = 0xFFFFFF
)

// GICD_IROUTER fields.
const (
	IRouterIRM          = 1 << 31
	IRouterAffinityMask = 0xFF_00FF_FFFF
)

// ICFGR: two bits per interrupt, the upper one selects edge triggering.
const ICFGREdge = 0x2

// Register word helpers. Bitmap registers hold 32 interrupts per word and
// ICFGR registers hold 16.

// Word32 returns the byte offset of the 32-bit bitmap word holding intid.
func Word32(intid uint32) uint64 { return uint64(intid/32) * 4 }

// Bit32 returns the mask selecting intid within its bitmap word.
func Bit32(intid uint32) uint32 { return 1 << (intid % 32) }

// Word16 returns the byte offset of the ICFGR word holding intid.
func Word16(intid uint32) uint64 { return uint64(intid/16) * 4 }

// EdgeBit16 returns the edge-select mask of intid within its ICFGR word.
func EdgeBit16(intid uint32) uint32 { return ICFGREdge << ((intid % 16) * 2) }

// IRouter returns the byte offset of GICD_IROUTER<intid>.
func IRouter(intid uint32) uint64 { return GICDIrouter + uint64(intid)*8 }
