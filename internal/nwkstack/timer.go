package nwkstack

// retransmitFlags selects the control-flag set a timeout retransmit should
// carry, per state, transcribed directly from nwk.c's nwk_tick retry
// switch. ok is false for the switch's default case: those states (e.g.
// CONNECT with nothing outstanding) arm no retransmit at all, they only
// get their countdown rearmed.
func retransmitFlags(state TCPState) (flags uint8, ok bool) {
	switch state {
	case StateSynSent, StateAckRec:
		return TCPFlagSYN, true
	case StateSynRec:
		return TCPFlagSYN | TCPFlagACK, true
	case StateAckWait:
		return TCPFlagACK | TCPFlagPSH, true
	case StateFinSent, StateFinAckRec:
		return TCPFlagACK, true
	case StateFinRec:
		return TCPFlagFIN | TCPFlagACK, true
	default:
		return 0, false
	}
}

// Tick is the periodic retransmission controller of §4.5. It decrements
// every TCP socket's countdown and, on reaching zero, either schedules a
// graduated-backoff retransmit or tears the connection down after the
// retry budget is exhausted.
func (s *Stack) Tick() {
	for i := range s.sockets {
		sock := &s.sockets[i]
		if sock.Kind != KindTCP || sock.State == StateIdle || sock.Time <= 0 {
			continue
		}
		sock.Time--
		if sock.Time > 0 {
			continue
		}
		if sock.Retry > 0 {
			sock.Retry--
			sock.Time = s.cfg.TimeoutTCP + 32*(s.cfg.RetriesTCP-sock.Retry)
			if flags, ok := retransmitFlags(sock.State); ok {
				sock.ToSend = flags
				sock.Timeout = true
				s.scheduleUpstream(0)
			} else {
				// default case in nwk_tick: rearm the countdown,
				// arm no send.
				sock.Timeout = false
			}
			continue
		}
		sock.State = StateIdle
		sock.RxData = 0
		sock.RxOOStart = 0
		sock.RxOOEnd = 0
		sock.deliver(EventDisconnect)
	}
	s.rearmTick()
}

// StartTicking arms the first Tick invocation; call once after attaching a
// Scheduler.
func (s *Stack) StartTicking() {
	s.rearmTick()
}

func (s *Stack) rearmTick() {
	if s.sched == nil {
		return
	}
	s.sched.TaskCancel(tickTaskName)
	s.sched.TaskAdd(func() { s.Tick() }, s.cfg.TickTCP, 1, tickTaskName)
}
