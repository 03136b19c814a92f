// Package nwkstack implements a minimal, single-threaded, cooperative
// IPv4/TCP/UDP core suitable for a memory-constrained embedded target.
//
// Goals:
//   - A TCP engine faithful to a strict one-outstanding-segment regime:
//     no window scaling, no SACK, no congestion control, no multiple
//     in-flight segments.
//   - Zero goroutines, zero mutexes in the hot path: every entry point
//     (Tick, Upstream, Downstream) runs to completion under the
//     assumption that the host's cooperative scheduler never re-enters it.
//   - A fixed-size socket table; each slot's tx/rx buffers are allocated
//     the first time the slot is opened and reused after that.
//
// Notes and limitations:
//   - No IPv6 support.
//   - No IP fragmentation/reassembly.
//   - At most one unacknowledged TCP segment per socket; no fast
//     retransmit, no RTT-adaptive timing.
package nwkstack

import (
	"errors"
	"fmt"
	"log/slog"
)

// Debug toggle. When true, Stack emits verbose per-packet traces.
var Debug = false

const (
	tcpHeaderLen  = 20
	udpHeaderLen  = 8
	ipv4HeaderLen = 20

	protocolICMP = 1
	protocolTCP  = 6
	protocolUDP  = 17
)

var (
	ErrSocketTableFull = errors.New("nwkstack: socket table full")
	ErrPortInUse       = errors.New("nwkstack: local port already bound")
	ErrNoLinkDriver    = errors.New("nwkstack: no link driver attached")
	ErrNoScheduler     = errors.New("nwkstack: no scheduler attached")
	ErrInvalidSocket   = errors.New("nwkstack: invalid socket handle")
	ErrUDPOnlySend     = errors.New("nwkstack: send not valid for this socket kind")
)

// LinkDriver is the external link-layer collaborator (§6). Ethernet framing,
// ARP resolution and frame DMA live entirely outside this package.
type LinkDriver interface {
	// ClearToSend reports whether the link can accept another frame now.
	ClearToSend() bool
	// IPSend hands a fully built IPv4 datagram (header + payload) to the
	// link layer. false means deferral (e.g. ARP miss); the caller
	// retains its pending-send state and retries on the next pass.
	IPSend(packet []byte) bool
}

// Scheduler is the external cooperative task-scheduler collaborator (§6).
type Scheduler interface {
	// TaskAdd enqueues fn to run after delayTicks, in priority order
	// relative to other pending tasks (lower priority value runs first).
	TaskAdd(fn func(), delayTicks int, priority int, name string)
	// TaskCancel removes any pending instance of a previously added task
	// registered under name.
	TaskCancel(name string)
}

// Event is an upward notification delivered to a socket's Callback.
type Event int

const (
	EventNone Event = iota
	EventConnect
	EventData
	EventDataSent
	EventDisconnect
	EventDisconnectWithData
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventConnect:
		return "connect"
	case EventData:
		return "data"
	case EventDataSent:
		return "data_sent"
	case EventDisconnect:
		return "disconnect"
	case EventDisconnectWithData:
		return "disconnect_with_data"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Callback is the upward notification sink bound to a socket at open time.
// When EventData is delivered, sock.RxBytes() is valid until the
// callback returns; the callback must consume it before returning.
type Callback func(sock *Socket, event Event)

const (
	upstreamTaskName = "nwkstack.upstream"
	tickTaskName     = "nwkstack.tick"
)

// Stack is the single owned "network context": the scratch header buffer,
// the IP id counter and the default header template are encapsulated here
// so the single-owner discipline required by the cooperative model (only
// one of Tick/Upstream/Downstream ever runs at a time) is enforced
// structurally rather than by convention.
type Stack struct {
	log *slog.Logger
	cfg Config

	link LinkDriver
	sched Scheduler

	sockets []Socket

	ipID uint16

	// scratch is reused across every emitted packet; it holds the
	// patched copy of defaultTemplate for the packet currently being
	// built by Upstream or by an ICMP echo reply.
	scratch []byte

	// defaultTemplate is the 40-byte IPv4+TCP skeleton patched per
	// packet: version/IHL, TTL, protocol left as TCP until overwritten
	// for UDP, and zeroed variable fields.
	defaultTemplate [ipv4HeaderLen + tcpHeaderLen]byte
}

// New constructs a Stack from cfg. The socket table and scratch buffer are
// allocated here. Each slot's tx/rx buffers are allocated by the first
// Open* call that uses the slot, and the scratch buffer is reallocated
// only when an outgoing packet does not fit in it.
func New(log *slog.Logger, cfg Config) (*Stack, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("nwkstack: invalid config: %w", err)
	}

	s := &Stack{
		log:     log,
		cfg:     cfg,
		sockets: make([]Socket, cfg.MaxSockets),
		scratch: make([]byte, ipv4HeaderLen+tcpHeaderLen+cfg.MaxSegmentPayload),
	}
	s.buildDefaultTemplate()
	for i := range s.sockets {
		s.sockets[i].index = i
		s.sockets[i].Kind = KindFree
	}
	return s, nil
}

// AttachLinkDriver binds the link-layer collaborator. Must be called before
// Upstream/Downstream are exercised.
func (s *Stack) AttachLinkDriver(l LinkDriver) {
	s.link = l
}

// AttachScheduler binds the cooperative task-scheduler collaborator. Must be
// called before any socket activity can self-reschedule (timers, upstream).
func (s *Stack) AttachScheduler(sch Scheduler) {
	s.sched = sch
}

func (s *Stack) buildDefaultTemplate() {
	t := s.defaultTemplate[:]
	t[0] = 0x45 // version 4, IHL 5 (no options)
	t[1] = 0    // TOS
	t[8] = 0x40 // TTL
	t[9] = byte(protocolTCP)
	copy(t[12:16], s.cfg.LocalIPv4[:])
}

// scheduleUpstream cancels any pending upstream instance and schedules a
// fresh one at delayTicks, per §9's "cooperative rescheduling" rule: a
// handler that sets to_send must not let a stale later-delayed invocation
// starve a fresh one.
func (s *Stack) scheduleUpstream(delayTicks int) {
	if s.sched == nil {
		return
	}
	s.sched.TaskCancel(upstreamTaskName)
	s.sched.TaskAdd(func() { s.Upstream() }, delayTicks, 0, upstreamTaskName)
}

func (s *Stack) debugf(msg string, args ...any) {
	if !Debug {
		return
	}
	s.log.Debug(msg, args...)
}
