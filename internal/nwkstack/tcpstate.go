package nwkstack

// handleTCPEvent implements §4.3's transition table plus the additional
// rules beneath it, and the RST-after-data ordering of §4.4/§9. It is
// invoked once per inbound TCP segment for a matched socket, after the
// segment's destination has already been confirmed and the out-of-window
// IPv4-level checks have passed.
func (s *Stack) handleTCPEvent(sock *Socket, hdr tcpHeader, payload []byte) {
	dataSize := len(payload)
	hasSYN := hdr.flags&TCPFlagSYN != 0
	hasACK := hdr.flags&TCPFlagACK != 0
	hasFIN := hdr.flags&TCPFlagFIN != 0
	hasRST := hdr.flags&TCPFlagRST != 0

	// "When ACK is observed, compare the 32-bit ack number against the
	// socket's seq; on mismatch in states >= CONNECT, drop the segment."
	if hasACK && sock.State >= StateConnect && hdr.ack != sock.Seq {
		return
	}

	// "When SYN is observed, adopt the remote sequence as rem_seq,
	// record rem_seq_start, and increment rem_seq by 1."
	if hasSYN {
		sock.RemSeqStart = hdr.seq
		sock.RemSeq = hdr.seq + 1
	} else if dataSize > 0 {
		s.acceptSegment(sock, hdr.seq, payload)
	}

	// "When FIN is observed ... adopt the remote sequence from the
	// packet header, add data_size + 1."
	if hasFIN {
		sock.RemSeq = hdr.seq + uint32(dataSize) + 1
	}

	// RST is processed after data acceptance (§9) so a final payload can
	// be surfaced via DISCONNECT_WITH_DATA rather than lost.
	if hasRST && sock.State >= StateConnect {
		event := EventDisconnect
		if sock.RxData > 0 {
			event = EventDisconnectWithData
		}
		sock.State = StateIdle
		sock.deliver(event)
		sock.RxData = 0
		sock.RxOOStart = 0
		sock.RxOOEnd = 0
		return
	}

	// "CONNECT / ACK_WAIT | data present | unchanged | ACK | DATA"
	// acceptSegment already folded the out-of-order extent and advanced
	// rem_seq; deliver here once, generically, for any state a payload
	// could legitimately land in.
	if sock.RxData > 0 {
		sock.ToSend |= TCPFlagACK
		sock.deliver(EventData)
		sock.RxData = 0
	}

	switch sock.State {
	case StateListen:
		if hasSYN {
			sock.State = StateSynRec
			sock.ToSend |= TCPFlagSYN | TCPFlagACK
		}

	case StateSynSent:
		if hasACK {
			sock.State = StateConnect
			sock.ToSend |= TCPFlagACK
			sock.Seq++
			sock.deliver(EventConnect)
		} else if hasSYN {
			sock.State = StateSynRec
			sock.ToSend |= TCPFlagSYN | TCPFlagACK
		}

	case StateSynRec:
		if hasACK {
			sock.State = StateConnect
			sock.deliver(EventConnect)
		}

	case StateConnect:
		if hasFIN {
			sock.State = StateFinRec
			sock.ToSend |= TCPFlagACK | TCPFlagFIN
			sock.deliver(EventDisconnect)
		}

	case StateAckWait:
		if hasFIN {
			sock.State = StateFinRec
			sock.ToSend |= TCPFlagACK | TCPFlagFIN
			sock.deliver(EventDisconnect)
		} else if hasACK {
			sock.State = StateConnect
		}

	case StateFinSent:
		if hasFIN && hasACK {
			sock.State = StateIdle
			sock.ToSend |= TCPFlagACK
			sock.deliver(EventDisconnect)
		} else if hasFIN {
			sock.State = StateFinRec
			sock.ToSend |= TCPFlagACK
		} else if hasACK {
			sock.State = StateFinAckRec
		}

	case StateFinRec:
		if hasACK {
			sock.State = StateIdle
			sock.deliver(EventDisconnect)
		}

	case StateFinAckRec:
		if hasFIN {
			sock.State = StateFinRec
			sock.ToSend |= TCPFlagACK
			sock.deliver(EventDisconnect)
		}

	case StateIdle, StateAckRec:
		// IDLE is terminal; ACK_REC is never entered by any transition
		// in this package (see DESIGN.md) and has no downstream
		// transition.
	}

	if sock.ToSend != 0 {
		// Every exchange that queues a send replenishes the retry
		// budget (nwk.c's done: block): retry is a per-exchange
		// allowance, not a whole-connection-lifetime one.
		sock.Retry = s.cfg.RetriesTCP
		s.scheduleUpstream(0)
	}
}
