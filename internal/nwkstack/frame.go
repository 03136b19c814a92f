package nwkstack

import (
	"encoding/binary"
	"fmt"
)

// TCP control-flag bits, matching the wire layout of the TCP flags byte.
const (
	TCPFlagFIN uint8 = 0x01
	TCPFlagSYN uint8 = 0x02
	TCPFlagRST uint8 = 0x04
	TCPFlagPSH uint8 = 0x08
	TCPFlagACK uint8 = 0x10
)

// ipv4Header is the decoded form of a fixed, options-free 20-byte IPv4
// header (§4.2).
type ipv4Header struct {
	totalLength uint16
	id          uint16
	protocol    uint8
	checksum    uint16
	src         [4]byte
	dst         [4]byte
}

// decodeIPv4Header validates the version/IHL byte and decodes a fixed
// 20-byte IPv4 header. Per §4.2 options are never supported: any IHL other
// than 5 is rejected rather than skipped.
func decodeIPv4Header(data []byte) (ipv4Header, []byte, error) {
	if len(data) < ipv4HeaderLen {
		return ipv4Header{}, nil, fmt.Errorf("nwkstack: ipv4 header too short: %d bytes", len(data))
	}
	if data[0] != 0x45 {
		return ipv4Header{}, nil, fmt.Errorf("nwkstack: unsupported ipv4 version/ihl byte 0x%02x", data[0])
	}
	var h ipv4Header
	h.totalLength = binary.BigEndian.Uint16(data[2:4])
	h.id = binary.BigEndian.Uint16(data[4:6])
	h.protocol = data[9]
	h.checksum = binary.BigEndian.Uint16(data[10:12])
	copy(h.src[:], data[12:16])
	copy(h.dst[:], data[16:20])

	if int(h.totalLength) < ipv4HeaderLen || int(h.totalLength) > len(data) {
		return ipv4Header{}, nil, fmt.Errorf("nwkstack: ipv4 total length out of range: %d", h.totalLength)
	}
	return h, data[ipv4HeaderLen:h.totalLength], nil
}

func verifyIPv4Checksum(data []byte) bool {
	if len(data) < ipv4HeaderLen {
		return false
	}
	var c Checksum
	c.AddRange(data[:ipv4HeaderLen])
	return c.Valid()
}

// verifyL4Checksum validates a TCP or UDP segment's checksum against the
// IPv4 pseudo-header of §4.1.
func verifyL4Checksum(hdr ipv4Header, protocol uint8, segment []byte) bool {
	var c Checksum
	c.AddPseudoHeader(hdr.src, hdr.dst, protocol, uint16(len(segment)))
	c.AddRange(segment)
	return c.Valid()
}

// tcpHeader is the decoded form of a fixed, options-free 20-byte TCP
// header.
type tcpHeader struct {
	srcPort uint16
	dstPort uint16
	seq     uint32
	ack     uint32
	flags   uint8
	window  uint16
}

func decodeTCPHeader(data []byte) (tcpHeader, []byte, error) {
	if len(data) < tcpHeaderLen {
		return tcpHeader{}, nil, fmt.Errorf("nwkstack: tcp header too short: %d bytes", len(data))
	}
	dataOffset := (data[12] >> 4) * 4
	if int(dataOffset) != tcpHeaderLen {
		return tcpHeader{}, nil, fmt.Errorf("nwkstack: unsupported tcp options, data offset %d", dataOffset)
	}
	h := tcpHeader{
		srcPort: binary.BigEndian.Uint16(data[0:2]),
		dstPort: binary.BigEndian.Uint16(data[2:4]),
		seq:     binary.BigEndian.Uint32(data[4:8]),
		ack:     binary.BigEndian.Uint32(data[8:12]),
		flags:   data[13],
		window:  binary.BigEndian.Uint16(data[14:16]),
	}
	return h, data[tcpHeaderLen:], nil
}

// udpHeader is the decoded form of the fixed 8-byte UDP header.
type udpHeader struct {
	srcPort uint16
	dstPort uint16
	length  uint16
}

func decodeUDPHeader(data []byte) (udpHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return udpHeader{}, nil, fmt.Errorf("nwkstack: udp header too short: %d bytes", len(data))
	}
	h := udpHeader{
		srcPort: binary.BigEndian.Uint16(data[0:2]),
		dstPort: binary.BigEndian.Uint16(data[2:4]),
		length:  binary.BigEndian.Uint16(data[4:6]),
	}
	if int(h.length) < udpHeaderLen || int(h.length) > len(data) {
		return udpHeader{}, nil, fmt.Errorf("nwkstack: udp length out of range: %d", h.length)
	}
	return h, data[udpHeaderLen:h.length], nil
}

// nextIPID returns the next value of the shared 16-bit IP identification
// counter, incrementing it per emitted packet as §3's global state requires.
func (s *Stack) nextIPID() uint16 {
	id := s.ipID
	s.ipID++
	return id
}

// buildIPv4Envelope patches s.scratch's shared default template in place
// with the IPv4 header for one outgoing packet and returns header+L4 space
// ready for the caller to fill in. l4Len is the total length (header plus
// payload) of whatever follows the IPv4 header.
func (s *Stack) buildIPv4Envelope(protocol uint8, srcIP, dstIP [4]byte, l4Len int) []byte {
	totalLen := ipv4HeaderLen + l4Len
	if cap(s.scratch) < totalLen {
		s.scratch = make([]byte, totalLen)
	}
	buf := s.scratch[:totalLen]
	copy(buf, s.defaultTemplate[:ipv4HeaderLen])

	buf[9] = protocol
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], s.nextIPID())
	copy(buf[12:16], srcIP[:])
	copy(buf[16:20], dstIP[:])
	binary.BigEndian.PutUint16(buf[10:12], 0)
	return buf
}

// buildHeaderInto is buildIPv4Envelope plus the source/dest port fields
// shared by the TCP and UDP header layouts. l4HeaderLen is 20 for TCP, 8
// for UDP.
func (s *Stack) buildHeaderInto(
	protocol uint8,
	l4HeaderLen int,
	srcIP, dstIP [4]byte,
	srcPort, dstPort uint16,
	payloadLen int,
) []byte {
	buf := s.buildIPv4Envelope(protocol, srcIP, dstIP, l4HeaderLen+payloadLen)
	l4 := buf[ipv4HeaderLen:]
	binary.BigEndian.PutUint16(l4[0:2], srcPort)
	binary.BigEndian.PutUint16(l4[2:4], dstPort)
	return buf
}

func finalizeIPv4Checksum(buf []byte) {
	binary.BigEndian.PutUint16(buf[10:12], 0)
	var c Checksum
	c.AddRange(buf[:ipv4HeaderLen])
	binary.BigEndian.PutUint16(buf[10:12], c.Result())
}
