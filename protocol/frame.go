package protocol

// deframer splits a byte stream into blocks. After a corrupt block it drops
// input up to and including the next sync byte.
type deframer struct {
	lost bool

	// Blocks whose seq byte lacks MessageDest are treated as corrupt
	requireDest bool
}

// feed scans data and calls onBlock for each complete valid block. onResync
// runs when the stream synchronizes again after a loss. Returns the number of
// bytes consumed; the rest is an incomplete block to be fed again.
func (d *deframer) feed(data []byte, onBlock func(seq uint8, payload []byte), onResync func()) int {
	total := len(data)
	for len(data) > 0 {
		if d.lost {
			i := indexSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			d.lost = false
			if onResync != nil {
				onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			d.lost = true
			continue
		}
		seq := data[MessagePositionSeq]
		if d.requireDest && seq&^MessageSeqMask != MessageDest {
			d.lost = true
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			d.lost = true
			continue
		}
		crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
		if crc != CRC16(data[:n-MessageTrailerSize]) {
			d.lost = true
			continue
		}

		payload := data[MessageHeaderSize : n-MessageTrailerSize]
		data = data[n:]
		onBlock(seq, payload)
	}
	return total - len(data)
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}

// EncodeBlock frames payload with the given sequence byte
func EncodeBlock(seq uint8, payload []byte) ([]byte, error) {
	n := MessageHeaderSize + len(payload) + MessageTrailerSize
	if n > MessageLengthMax {
		return nil, ErrMessageTooLong
	}
	block := make([]byte, 0, n)
	block = append(block, uint8(n), seq)
	block = append(block, payload...)
	return appendTrailer(block), nil
}
