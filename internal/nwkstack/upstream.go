package nwkstack

import "encoding/binary"

// Upstream is the cooperatively scheduled sender of §4.6: it emits at most
// one pending segment per socket per invocation, respecting link
// back-pressure, and re-arms itself so later-queued sockets still drain.
func (s *Stack) Upstream() {
	if s.link == nil {
		return
	}
	if !s.link.ClearToSend() {
		s.scheduleUpstream(2)
		return
	}

	for i := range s.sockets {
		sock := &s.sockets[i]
		if sock.Kind == KindFree || sock.ToSend == 0 {
			continue
		}
		switch sock.Kind {
		case KindTCP:
			s.emitTCP(sock)
		case KindUDP:
			s.emitUDP(sock)
		}
	}

	s.scheduleUpstream(5)
}

func socketTimeout(cfg Config, sock *Socket) int {
	return cfg.TimeoutTCP + 32*(cfg.RetriesTCP-sock.Retry)
}

func (s *Stack) emitTCP(sock *Socket) {
	payloadLen := 0
	if sock.ToSend&TCPFlagPSH != 0 {
		payloadLen = sock.TxSize
	}

	var wireSeq uint32
	pendingAdvance := uint32(0)
	fresh := !sock.Timeout
	if fresh {
		wireSeq = sock.Seq
		pendingAdvance = uint32(payloadLen)
		if sock.ToSend&(TCPFlagSYN|TCPFlagFIN) != 0 {
			pendingAdvance++
		}
	} else {
		// Retransmission: replay exactly the value last placed on the
		// wire. Never re-derive it by subtracting from the (already
		// advanced) sock.Seq — see DESIGN.md for why the source's
		// subtraction arithmetic was dropped in favor of storing the
		// value directly.
		wireSeq = sock.txSeq
	}

	srcIP := s.cfg.LocalIPv4
	dstIP := uint32ToIP(sock.RemoteIP)
	packet := s.buildHeaderInto(protocolTCP, tcpHeaderLen, srcIP, dstIP, sock.LocalPort, sock.RemotePort, payloadLen)
	tcp := packet[ipv4HeaderLen:]

	binary.BigEndian.PutUint32(tcp[4:8], wireSeq)
	binary.BigEndian.PutUint32(tcp[8:12], sock.RemSeq)
	tcp[12] = (tcpHeaderLen / 4) << 4
	tcp[13] = sock.ToSend
	window := sock.RxSize - max(sock.RxData, sock.RxOOEnd)
	binary.BigEndian.PutUint16(tcp[14:16], uint16(window))
	binary.BigEndian.PutUint16(tcp[16:18], 0)
	binary.BigEndian.PutUint16(tcp[18:20], 0)
	if payloadLen > 0 {
		copy(tcp[tcpHeaderLen:], sock.tx[:payloadLen])
	}

	var c Checksum
	c.AddPseudoHeader(srcIP, dstIP, protocolTCP, uint16(tcpHeaderLen+payloadLen))
	c.AddRange(tcp[:tcpHeaderLen+payloadLen])
	binary.BigEndian.PutUint16(tcp[16:18], c.Result())

	finalizeIPv4Checksum(packet)

	if !s.link.IPSend(packet) {
		// Link deferred (e.g. ARP miss): to_send stays set and no socket
		// field computed above is committed, so the next pass recomputes
		// the same fresh segment (only the IP id differs, since the
		// shared counter has already advanced).
		return
	}

	if fresh {
		sock.txSeq = wireSeq
		sock.Seq += pendingAdvance
	}
	sock.ToSend = 0
	sock.Timeout = false
	sock.Time = socketTimeout(s.cfg, sock)
}

