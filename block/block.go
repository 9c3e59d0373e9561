// Package block defines the wire layout shared by HIP, SVM and TIP: the
// four-byte block header every framed buffer starts with, the block-type
// codes carried in its low three bits, and the handful of fixed-offset
// message shapes layered on top of it (service-message tails, the
// unsolicited line-status template, the NPU-init message). Offsets are the
// protocol here, so they are named constants rather than struct fields --
// the same bytes are reinterpreted differently depending on block type.
package block

// Header offsets common to every framed block.
const (
	OffDN    = 0 // destination node
	OffSN    = 1 // source node
	OffCN    = 2 // connection number
	OffBTBSN = 3 // low 3 bits block type, upper 3 bits BSN
	OffDBC   = 4 // data-block clarifier, data blocks only
)

// BTBSN byte layout.
const (
	MaskBT   = 0x07
	ShiftBSN = 4
)

// Block types carried in the low 3 bits of OffBTBSN.
const (
	BTHTBLK  = 1 // intermediate data block
	BTHTMSG  = 2 // final message block
	BTHTBACK = 3 // upline acknowledgement
	BTHTCMD  = 4 // command block
)

// DBC (data-block clarifier) flag bits. The retrieved CCI source fragment
// didn't carry the header defining exact bit positions for these; they are
// chosen to be internally consistent with the roles spec.md assigns them
// (a PRU-counted host message, and 8-bit vs 6-bit display code packing).
const (
	DBCPRU            = 0x08 // buffer length should be reported in PRUs
	DBC8Bit           = 0x10 // PRU bit-packing is 8 bits/byte, not 6
	DBCNonTransparent = 0x05 // upline input data DBC value
)

// Service-message (Command block) field offsets.
const (
	OffPFC = 4
	OffSFC = 5
	OffP   = 6 // port
	OffSP  = 7 // subport
	OffLT  = 8 // line type
	OffTT  = 9 // terminal type
)

// SFC high-bit return-code framing.
const (
	SfcSuccess = 0x40
	SfcError   = 0x80
)

// BuildHeader writes DN/SN/CN/BTBSN into the first 4 bytes of dst.
func BuildHeader(dst []byte, dn, sn, cn byte, bt byte, bsn byte) {
	dst[OffDN] = dn
	dst[OffSN] = sn
	dst[OffCN] = cn
	dst[OffBTBSN] = (bt & MaskBT) | (bsn << ShiftBSN)
}

// BT extracts the block type from a BTBSN byte.
func BT(btbsn byte) byte {
	return btbsn & MaskBT
}

// BSN extracts the block sequence number from a BTBSN byte.
func BSN(btbsn byte) byte {
	return (btbsn >> ShiftBSN) & 0x07
}
