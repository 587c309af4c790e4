package protocol

import "errors"

// ErrTruncated reports a VLQ value cut short by the end of the buffer.
var ErrTruncated = errors.New("protocol: truncated VLQ value")

// AppendInt appends v in Klipper's variable-length quantity encoding:
// big-endian 7-bit groups with a continuation bit, sign folded into the
// leading group.
func AppendInt(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7f)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7f)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7f)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7f)|0x80)
	}
	return append(dst, byte(v&0x7f))
}

// AppendUint appends v as a VLQ.
func AppendUint(dst []byte, v uint32) []byte {
	return AppendInt(dst, int32(v))
}

// AppendBytes appends a VLQ length prefix followed by b.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// ReadInt decodes one VLQ from data, returning the value and the
// remaining bytes.
func ReadInt(data []byte) (int32, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrTruncated
	}
	c := uint32(data[0])
	data = data[1:]

	v := c & 0x7f
	if (c & 0x60) == 0x60 {
		// Negative leading group: sign-extend.
		v |= ^uint32(0x1f)
	}
	for c&0x80 != 0 {
		if len(data) == 0 {
			return 0, nil, ErrTruncated
		}
		c = uint32(data[0])
		data = data[1:]
		v = (v << 7) | (c & 0x7f)
	}
	return int32(v), data, nil
}

// ReadUint decodes one VLQ as unsigned.
func ReadUint(data []byte) (uint32, []byte, error) {
	v, rest, err := ReadInt(data)
	return uint32(v), rest, err
}

// ReadBytes decodes a VLQ length prefix and returns that many bytes.
func ReadBytes(data []byte) ([]byte, []byte, error) {
	n, rest, err := ReadUint(data)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, ErrTruncated
	}
	return rest[:n], rest[n:], nil
}
