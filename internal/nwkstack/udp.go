package nwkstack

import "encoding/binary"

// handleUDP is UDP's half of the downstream dispatch: a datagram is never
// reassembled or acknowledged — it is either delivered whole to a bound
// socket or dropped.
func (s *Stack) handleUDP(hdr ipv4Header, segment []byte) {
	uh, payload, err := decodeUDPHeader(segment)
	if err != nil {
		s.debugf("nwkstack: drop malformed udp segment", "error", err)
		return
	}
	if uh.length < udpHeaderLen {
		return
	}
	if segment[6] != 0 || segment[7] != 0 {
		// A zero checksum field means the sender opted out, per the UDP
		// convention; anything else must validate.
		if !verifyL4Checksum(hdr, protocolUDP, segment[:uh.length]) {
			s.debugf("nwkstack: drop udp checksum mismatch")
			return
		}
	}

	sock := s.findUDPByPort(uh.dstPort)
	if sock == nil {
		s.debugf("nwkstack: drop udp, no socket on port", "port", uh.dstPort)
		return
	}

	n := len(payload)
	if n > sock.RxSize {
		n = sock.RxSize
	}
	sock.RxData = copy(sock.rx[:n], payload[:n])
	sock.RemoteIP = ipToUint32(hdr.src)
	sock.RemotePort = uh.srcPort
	if sock.RxData > 0 {
		sock.deliver(EventData)
	}
	sock.RxData = 0
}

// emitUDP is UDP's half of the upstream sender: a single datagram, sent
// once, with an immediate DATA_SENT upward notification since UDP carries
// no acknowledgment in this core.
func (s *Stack) emitUDP(sock *Socket) {
	payloadLen := sock.TxSize

	srcIP := s.cfg.LocalIPv4
	dstIP := uint32ToIP(sock.RemoteIP)
	packet := s.buildHeaderInto(protocolUDP, udpHeaderLen, srcIP, dstIP, sock.LocalPort, sock.RemotePort, payloadLen)
	udp := packet[ipv4HeaderLen:]

	binary.BigEndian.PutUint16(udp[4:6], uint16(udpHeaderLen+payloadLen))
	binary.BigEndian.PutUint16(udp[6:8], 0)
	if payloadLen > 0 {
		copy(udp[udpHeaderLen:], sock.tx[:payloadLen])
	}

	var c Checksum
	c.AddPseudoHeader(srcIP, dstIP, protocolUDP, uint16(udpHeaderLen+payloadLen))
	c.AddRange(udp[:udpHeaderLen+payloadLen])
	binary.BigEndian.PutUint16(udp[6:8], c.Result())

	finalizeIPv4Checksum(packet)

	if !s.link.IPSend(packet) {
		return
	}

	sock.ToSend = 0
	sock.deliver(EventDataSent)
}
