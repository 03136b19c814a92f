package nwkstack

// acceptSegment implements the in-window reassembly algorithm of §4.4. It
// is invoked once per inbound TCP segment carrying a TCP payload, after the
// state machine has already adopted a SYN's sequence number (SYN itself
// never flows through here as payload).
//
// rel is computed as an unsigned 32-bit difference so that a genuinely
// old/duplicate segment (remoteSeq behind sock.RemSeq) wraps around to a
// huge value and is rejected by the out-of-window case rather than
// mistaken for a far-future one.
func (s *Stack) acceptSegment(sock *Socket, remoteSeq uint32, payload []byte) {
	dataSize := len(payload)
	rel := int(remoteSeq - sock.RemSeq)

	switch {
	case rel < 0, rel >= sock.RxSize, rel+dataSize > sock.RxSize:
		// Case 1: out of window. Schedule a resync ACK for real data; a
		// bare duplicate/empty segment is simply ignored.
		if dataSize > 0 {
			sock.ToSend |= TCPFlagACK
		}
		return

	case rel == sock.RxData:
		// Case 2: extends the in-order region.
		n := dataSize
		if rel+n > sock.RxSize {
			n = sock.RxSize - rel
		}
		copy(sock.rx[rel:rel+n], payload[:n])
		sock.RxData += n

	case rel == sock.RxOOEnd && dataSize > 0:
		// Case 3: extends the out-of-order extent at its tail.
		wasEmpty := sock.RxOOStart == 0 && sock.RxOOEnd == 0
		copy(sock.rx[rel:rel+dataSize], payload)
		sock.RxOOEnd = rel + dataSize
		if wasEmpty {
			sock.RxOOStart = rel
		}

	case rel+dataSize == sock.RxOOStart && sock.RxOOStart > 0:
		// Case 4: extends the out-of-order extent at its head. Only
		// rx_oo_start moves; rx_oo_end is untouched (see DESIGN.md on the
		// original source's rx_oo_end-vs-rx_oo_start confusion here).
		copy(sock.rx[rel:rel+dataSize], payload)
		sock.RxOOStart = rel

	case rel+dataSize < sock.RxSize && sock.RxOOStart == 0 && sock.RxOOEnd == 0 && dataSize > 0:
		// Case 5: no extent present yet; stash this one.
		copy(sock.rx[rel:rel+dataSize], payload)
		sock.RxOOStart = rel
		sock.RxOOEnd = rel + dataSize

	default:
		// Case 6: unacceptable placement (typically a duplicate with
		// rel != 0 that doesn't extend anything we're holding).
		if rel != 0 {
			sock.ToSend |= TCPFlagACK
		}
		return
	}

	sock.ToSend |= TCPFlagACK

	// Fold the out-of-order extent into the in-order region once they
	// touch.
	if sock.RxOOStart > 0 && sock.RxData == sock.RxOOStart {
		sock.RxData = sock.RxOOEnd
		sock.RxOOStart = 0
		sock.RxOOEnd = 0
	}

	sock.RemSeq += uint32(sock.RxData)
	// Delivery of EventData (or folding into EventDisconnectWithData) is
	// the caller's decision: handleTCPEvent must see RxData before RST
	// processing can decide between the two.
}
