package tip

// DeviceKind is the device type a TCB's terminal was configured as, decoded
// from the top 3 bits of the ConfTerm message's device-type byte.
type DeviceKind int

const (
	DeviceConsole DeviceKind = iota
	DeviceCardReader
	DeviceLinePrinter
	DeviceCardPunch
	DevicePlotter
)

// TipType is the closed set of terminal-interface-program types a terminal
// can be configured with. Only Async is implemented; the others mirror
// cciTipType's MODE4/HASP/BSC and are accepted as named values purely so
// ConfTerm has something concrete to reject with InvalidTerminalType.
type TipType int

const (
	TipAsync TipType = iota
	TipMode4
	TipHASP
	TipBSC
)

// Params is a TCB's terminal parameter block (TipParams in the data model).
// Field names match the source protocol's FV (field value) names.
type Params struct {
	EOL            byte
	EOLTerm        byte
	EOLCursorPos   byte
	EOB            byte
	EOBTerm        byte
	EOBCursorPos   byte
	BS             byte
	UserBreak1     byte
	UserBreak2     byte
	AbortBlock     byte
	CN             byte
	CT             byte
	BlockFactor    byte
	PL             byte
	PW             byte
	Parity         byte
	Echoplex       bool
	CursorPos      bool
	DBL            byte
	DBZ            int
	ABL            byte
	UBL            byte
	UBZ            int
	Priority       byte
	HostNode       byte
	TC             byte
	XCnt           int
	XChar          byte
	Duplex         bool
}

// Control-character values used by the default parameter block.
const (
	chrCR   = 0x0D
	chrBS   = 0x08
	chrEOT  = 0x04
	chrEsc  = 0x1B
	chrCtrlP = 0x10
	chrCtrlT = 0x14
	chrCtrlX = 0x18
	tc721   = 2 // TC721 terminal-class code
)

// DefaultParams builds the default Tc0 parameter block. hostNode is the
// coupler node number substituted into HostNode.
func DefaultParams(hostNode byte) Params {
	return Params{
		EOL:          chrCR,
		EOLTerm:      1,
		EOLCursorPos: 2,
		EOB:          chrEOT,
		EOBTerm:      2,
		EOBCursorPos: 3,
		BS:           chrBS,
		UserBreak1:   chrCtrlP,
		UserBreak2:   chrCtrlT,
		AbortBlock:   chrCtrlX,
		CN:           chrCtrlX,
		CT:           chrEsc,
		BlockFactor:  1,
		PL:           24,
		PW:           80,
		Parity:       2,
		Echoplex:     true,
		CursorPos:    true,
		DBL:          2,
		DBZ:          940,
		ABL:          2,
		UBL:          7,
		UBZ:          100,
		Priority:     1,
		HostNode:     hostNode,
		TC:           tc721,
		XCnt:         2043,
		XChar:        chrCR,
		Duplex:       false,
	}
}
