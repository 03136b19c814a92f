package nwkstack

import "encoding/binary"

// Checksum accumulates a standard one's-complement sum over an even-padded
// byte range, per §4.1. The zero value is ready to use; call Init to make
// that explicit at call sites that re-use a variable across packets.
type Checksum struct {
	sum uint32
}

// Init resets the accumulator to zero.
func (c *Checksum) Init() {
	c.sum = 0
}

// AddRange folds data into the accumulator two bytes at a time, treating an
// odd trailing byte as if padded with a zero low byte (network-order
// convention: the odd byte is the high byte of its pair).
func (c *Checksum) AddRange(data []byte) {
	n := len(data)
	i := 0
	for ; i+1 < n; i += 2 {
		c.sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if i < n {
		c.sum += uint32(data[i]) << 8
	}
}

// AddU16 folds in a single 16-bit value not present in any buffer, used for
// pseudo-header fields such as the zero-padded protocol byte and the
// segment length.
func (c *Checksum) AddU16(v uint16) {
	c.sum += uint32(v)
}

// AddPseudoHeader folds in the IPv4 TCP/UDP pseudo-header: source IP (4),
// dest IP (4), protocol (1, zero-padded to 2), and segment length (2).
func (c *Checksum) AddPseudoHeader(srcIP, dstIP [4]byte, protocol uint8, segmentLen uint16) {
	c.AddRange(srcIP[:])
	c.AddRange(dstIP[:])
	c.AddU16(uint16(protocol))
	c.AddU16(segmentLen)
}

// Result folds the accumulator down to 16 bits and returns its one's
// complement, ready to be written into a checksum field.
func (c *Checksum) Result() uint16 {
	sum := c.sum
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Valid reports whether the accumulator, including a transmitted checksum
// field within the summed range, folds to all-ones (0xFFFF) — the standard
// validation shortcut that avoids recomputing the checksum from scratch.
func (c *Checksum) Valid() bool {
	sum := c.sum
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return uint16(sum) == 0xffff
}
