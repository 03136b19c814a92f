package nwkstack

// Downstream is the inbound dispatch path of §4/§7: frame codec validation,
// destination match, and protocol branch. Every failure mode here is a
// silent drop per §7 — the core never raises a fatal error for a malformed
// or unroutable inbound frame.
func (s *Stack) Downstream(packet []byte) {
	hdr, payload, err := decodeIPv4Header(packet)
	if err != nil {
		s.debugf("nwkstack: drop malformed ipv4 frame", "error", err)
		return
	}
	if !verifyIPv4Checksum(packet) {
		s.debugf("nwkstack: drop ipv4 checksum mismatch")
		return
	}
	if hdr.dst != s.cfg.LocalIPv4 && hdr.dst != s.cfg.BroadcastIPv4 {
		s.debugf("nwkstack: drop ipv4 packet not addressed to us", "dst", hdr.dst)
		return
	}

	switch hdr.protocol {
	case protocolICMP:
		s.handleICMP(hdr, payload)
	case protocolUDP:
		s.handleUDP(hdr, payload)
	case protocolTCP:
		s.handleTCP(hdr, payload)
	default:
		s.debugf("nwkstack: drop unknown ipv4 protocol", "protocol", hdr.protocol)
	}
}

func (s *Stack) handleTCP(hdr ipv4Header, segment []byte) {
	th, payload, err := decodeTCPHeader(segment)
	if err != nil {
		s.debugf("nwkstack: drop malformed tcp segment", "error", err)
		return
	}
	if !verifyL4Checksum(hdr, protocolTCP, segment) {
		s.debugf("nwkstack: drop tcp checksum mismatch")
		return
	}

	srcIP := ipToUint32(hdr.src)
	sock := s.findTCPSocket(th.dstPort, th.srcPort, srcIP)
	if sock == nil {
		s.debugf("nwkstack: drop tcp, no matching socket", "port", th.dstPort)
		return
	}

	if sock.Listening {
		if th.flags&TCPFlagSYN == 0 {
			// Nothing to accept: a non-SYN packet to a socket still
			// waiting for its first peer.
			return
		}
		sock.RemoteIP = srcIP
		sock.RemotePort = th.srcPort
		sock.Listening = false
	}

	s.handleTCPEvent(sock, th, payload)
}
