package nwkstack

import "encoding/binary"

const (
	icmpTypeEchoReply   = 0
	icmpTypeEchoRequest = 8
	icmpHeaderLen       = 8
)

// handleICMP implements the supplemented ICMP echo-reply feature: validate
// the ICMP checksum and, for an Echo Request, emit an Echo Reply with the
// identifier/sequence/payload echoed back immediately via the link driver.
// No socket is involved and nothing is scheduled or retried — this mirrors
// the original implementation's unconditional, synchronous reply.
func (s *Stack) handleICMP(hdr ipv4Header, segment []byte) {
	if !s.cfg.EnableICMPEcho {
		return
	}
	if len(segment) < icmpHeaderLen {
		return
	}
	var c Checksum
	c.AddRange(segment)
	if !c.Valid() {
		s.debugf("nwkstack: drop icmp checksum mismatch")
		return
	}
	if segment[0] != icmpTypeEchoRequest {
		return
	}
	if s.link == nil {
		return
	}

	payloadLen := len(segment) - icmpHeaderLen
	packet := s.buildIPv4Envelope(protocolICMP, s.cfg.LocalIPv4, hdr.src, icmpHeaderLen+payloadLen)
	icmp := packet[ipv4HeaderLen:]
	icmp[0] = icmpTypeEchoReply
	icmp[1] = 0
	copy(icmp[4:6], segment[4:6]) // identifier
	copy(icmp[6:8], segment[6:8]) // sequence
	copy(icmp[icmpHeaderLen:], segment[icmpHeaderLen:])

	binary.BigEndian.PutUint16(icmp[2:4], 0)
	var ic Checksum
	ic.AddRange(icmp[:icmpHeaderLen+payloadLen])
	binary.BigEndian.PutUint16(icmp[2:4], ic.Result())

	finalizeIPv4Checksum(packet)
	s.link.IPSend(packet)
}
