package nwkstack

import (
	"encoding/binary"
	"fmt"
)

// SocketKind distinguishes a free table slot from a live TCP or UDP
// descriptor.
type SocketKind int

const (
	KindFree SocketKind = iota
	KindTCP
	KindUDP
)

func (k SocketKind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TCPState is one of the ten states of §4.3's transition table.
type TCPState int

const (
	StateIdle TCPState = iota
	StateListen
	StateSynSent
	StateSynRec
	StateAckRec
	StateConnect
	StateAckWait
	StateFinSent
	StateFinRec
	StateFinAckRec
)

func (s TCPState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRec:
		return "SYN_REC"
	case StateAckRec:
		return "ACK_REC"
	case StateConnect:
		return "CONNECT"
	case StateAckWait:
		return "ACK_WAIT"
	case StateFinSent:
		return "FIN_SENT"
	case StateFinRec:
		return "FIN_REC"
	case StateFinAckRec:
		return "FIN_ACK_REC"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// remoteIPBroadcast is the sentinel value of RemoteIP meaning "bound to
// broadcast, accept any source" (§3).
const remoteIPBroadcast uint32 = 0xFFFFFFFF

// Socket is the descriptor of §3: a fixed-size record reused in place for
// the lifetime of the table slot. Fields are exported so a host embedding
// this package can introspect state for diagnostics (e.g. metrics.go),
// but only the methods on Stack may mutate them — the cooperative
// single-owner discipline is structural, not enforced by visibility.
type Socket struct {
	index int

	Kind  SocketKind
	State TCPState

	LocalPort  uint16
	RemotePort uint16
	RemoteIP   uint32 // network byte order value; remoteIPBroadcast is the wildcard sentinel.
	Listening  bool

	Seq         uint32
	txSeq       uint32 // wire seq of the outstanding segment; replayed verbatim on retransmit
	RemSeq      uint32
	RemSeqStart uint32

	tx     []byte
	TxSize int

	rx     []byte
	RxSize int
	RxData int

	RxOOStart int
	RxOOEnd   int

	ToSend  uint8 // bitmask over TCPFlag{SYN,ACK,PSH,FIN,RST}
	Retry   int
	Time    int
	Timeout bool

	callback Callback
}

// Free reports whether this slot holds no live connection or datagram
// binding.
func (sock *Socket) Free() bool { return sock.Kind == KindFree }

// reset clears a slot back to its zero, free state without touching the
// backing tx/rx buffers (they are reused by the next occupant of this
// slot).
func (sock *Socket) reset() {
	tx, rx, idx := sock.tx, sock.rx, sock.index
	*sock = Socket{}
	sock.tx, sock.rx, sock.index = tx, rx, idx
	sock.Kind = KindFree
}

func (sock *Socket) deliver(event Event) {
	if sock.callback == nil || event == EventNone {
		return
	}
	sock.callback(sock, event)
}

// RxBytes returns the in-order receive bytes currently pending delivery.
// Valid only from within a Callback invoked with EventData or
// EventDisconnectWithData.
func (sock *Socket) RxBytes() []byte {
	return sock.rx[:sock.RxData]
}

func (s *Stack) findFreeSocket() *Socket {
	for i := range s.sockets {
		if s.sockets[i].Kind == KindFree {
			return &s.sockets[i]
		}
	}
	return nil
}

func (s *Stack) findTCPByPort(localPort uint16) *Socket {
	for i := range s.sockets {
		sock := &s.sockets[i]
		if sock.Kind == KindTCP && sock.LocalPort == localPort {
			return sock
		}
	}
	return nil
}

// findTCPSocket matches an inbound TCP segment to a socket by the rule of
// §3: an exact four-tuple match takes precedence; a LISTEN socket on the
// destination port (including one still bound to the broadcast sentinel)
// accepts from any source and clears Listening on first match.
func (s *Stack) findTCPSocket(localPort, remotePort uint16, remoteIP uint32) *Socket {
	var listener *Socket
	for i := range s.sockets {
		sock := &s.sockets[i]
		if sock.Kind != KindTCP || sock.LocalPort != localPort {
			continue
		}
		if sock.Listening {
			if listener == nil {
				listener = sock
			}
			continue
		}
		if sock.RemotePort == remotePort &&
			(sock.RemoteIP == remoteIPBroadcast || sock.RemoteIP == remoteIP) {
			return sock
		}
	}
	return listener
}

func (s *Stack) findUDPByPort(localPort uint16) *Socket {
	for i := range s.sockets {
		sock := &s.sockets[i]
		if sock.Kind == KindUDP && sock.LocalPort == localPort {
			return sock
		}
	}
	return nil
}

func ipToUint32(ip [4]byte) uint32 {
	return binary.BigEndian.Uint32(ip[:])
}

func uint32ToIP(v uint32) [4]byte {
	var ip [4]byte
	binary.BigEndian.PutUint32(ip[:], v)
	return ip
}

// OpenListen binds sock in passive-open LISTEN state on localPort, ready to
// accept a connection from any source.
func (s *Stack) OpenListen(localPort uint16, cb Callback) (*Socket, error) {
	if s.findTCPByPort(localPort) != nil {
		return nil, fmt.Errorf("%w: tcp port %d", ErrPortInUse, localPort)
	}
	sock := s.findFreeSocket()
	if sock == nil {
		return nil, ErrSocketTableFull
	}
	sock.reset()
	s.ensureBuffers(sock)
	sock.Kind = KindTCP
	sock.State = StateListen
	sock.LocalPort = localPort
	sock.Listening = true
	sock.RemoteIP = remoteIPBroadcast
	sock.callback = cb
	sock.Retry = s.cfg.RetriesTCP
	return sock, nil
}

// OpenConnect opens an active TCP connection to remoteIP:remotePort from
// localPort, sending the initial SYN on the next Upstream pass.
func (s *Stack) OpenConnect(remoteIP [4]byte, remotePort, localPort uint16, initialSeq uint32, cb Callback) (*Socket, error) {
	if s.findTCPByPort(localPort) != nil {
		return nil, fmt.Errorf("%w: tcp port %d", ErrPortInUse, localPort)
	}
	sock := s.findFreeSocket()
	if sock == nil {
		return nil, ErrSocketTableFull
	}
	sock.reset()
	s.ensureBuffers(sock)
	sock.Kind = KindTCP
	sock.State = StateSynSent
	sock.LocalPort = localPort
	sock.RemotePort = remotePort
	sock.RemoteIP = ipToUint32(remoteIP)
	sock.Seq = initialSeq
	sock.Retry = s.cfg.RetriesTCP
	sock.callback = cb
	sock.ToSend = TCPFlagSYN
	sock.Time = s.cfg.TimeoutTCP
	s.scheduleUpstream(0)
	return sock, nil
}

// OpenUDP binds a datagram socket on localPort.
func (s *Stack) OpenUDP(localPort uint16, cb Callback) (*Socket, error) {
	if s.findUDPByPort(localPort) != nil {
		return nil, fmt.Errorf("%w: udp port %d", ErrPortInUse, localPort)
	}
	sock := s.findFreeSocket()
	if sock == nil {
		return nil, ErrSocketTableFull
	}
	sock.reset()
	s.ensureBuffers(sock)
	sock.Kind = KindUDP
	sock.LocalPort = localPort
	sock.RemoteIP = remoteIPBroadcast
	sock.callback = cb
	return sock, nil
}

func (s *Stack) ensureBuffers(sock *Socket) {
	if cap(sock.tx) < s.cfg.MaxSegmentPayload {
		sock.tx = make([]byte, s.cfg.MaxSegmentPayload)
	}
	if cap(sock.rx) < s.cfg.RxBufferSize {
		sock.rx = make([]byte, s.cfg.RxBufferSize)
	}
	sock.RxSize = s.cfg.RxBufferSize
}

// SendUDP addresses and queues a UDP datagram for immediate emission; UDP
// is not acknowledged or retransmitted by the core.
func (s *Stack) SendUDP(sock *Socket, remoteIP [4]byte, remotePort uint16, data []byte) error {
	if sock.Kind != KindUDP {
		return ErrUDPOnlySend
	}
	if len(data) > len(sock.tx) {
		return fmt.Errorf("nwkstack: udp payload %d exceeds max segment payload %d", len(data), len(sock.tx))
	}
	sock.RemoteIP = ipToUint32(remoteIP)
	sock.RemotePort = remotePort
	sock.TxSize = copy(sock.tx, data)
	sock.ToSend = TCPFlagPSH
	s.scheduleUpstream(0)
	return nil
}

// Send queues data as the next PSH segment for a connected TCP socket.
// Per the one-outstanding-segment policy, a second Send before the first
// is acknowledged is rejected.
func (s *Stack) Send(sock *Socket, data []byte) error {
	if sock.Kind != KindTCP {
		return ErrUDPOnlySend
	}
	if sock.State == StateAckWait || sock.ToSend&TCPFlagPSH != 0 {
		return fmt.Errorf("nwkstack: socket already has an outstanding segment")
	}
	if len(data) > len(sock.tx) {
		return fmt.Errorf("nwkstack: payload %d exceeds max segment payload %d", len(data), len(sock.tx))
	}
	sock.TxSize = copy(sock.tx, data)
	sock.ToSend |= TCPFlagPSH
	if sock.State == StateConnect {
		sock.State = StateAckWait
	}
	s.scheduleUpstream(0)
	return nil
}

// Close is the external close call of §3's lifecycle: it returns the slot
// to FREE directly. (The core itself only ever transitions State to IDLE
// and emits DISCONNECT; reclaiming the slot is always an explicit action
// by the owner, mirroring "state == IDLE is terminal ... any further
// activity requires an explicit application-level re-open.")
func (s *Stack) Close(sock *Socket) error {
	if sock == nil || sock.index < 0 || sock.index >= len(s.sockets) || &s.sockets[sock.index] != sock {
		return ErrInvalidSocket
	}
	if s.sched != nil {
		// no per-socket task names exist beyond the shared upstream/tick
		// tasks, which other sockets may still need; nothing to cancel here.
		_ = s.sched
	}
	sock.reset()
	return nil
}
