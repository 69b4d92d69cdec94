// Package protocol implements the framed, CRC-checked wire protocol spoken
// between a pin host and a device running the pin firmware.
//
// A block on the wire is:
//
//	len seq payload... crc_hi crc_lo 0x7E
//
// where len counts the whole block, seq carries 0x10 in its high nibble and
// a 4-bit sequence number, and the payload is a run of messages, each a VLQ
// message ID followed by VLQ-encoded arguments.
package protocol

// Version of the wire protocol and firmware
const Version = "gopins-0.1.0"

const (
	MessageMax = 512 // Scratch buffer size; holds several blocks

	// Message sequence masks
	MessageSeqMask  = 0x0F
	MessageSeqShift = 4
)

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
)

// nextSeq returns the sequence that follows seq, keeping the destination bits
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
