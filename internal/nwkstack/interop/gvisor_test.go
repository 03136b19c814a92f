// Package interop cross-checks nwkstack's wire format against
// gvisor.dev/gvisor's header package: packets built by gVisor are fed
// through Stack.Downstream, and packets emitted by Stack.Upstream are
// parsed with gVisor's header accessors. Neither side runs a live gVisor
// network stack here (see DESIGN.md for why the teacher's goroutine-bridged
// two-stack harness doesn't fit a synchronous, single-threaded core) — this
// package only exercises gVisor's packet encoder/decoder as a wire-format
// oracle independent from nwkstack's own frame.go.
package interop

import (
	"io"
	"log/slog"
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"narrowband/nwkcore/internal/nwkstack"
)

var (
	localAddr = tcpip.AddrFrom4([4]byte{10, 0, 0, 1})
	peerAddr  = tcpip.AddrFrom4([4]byte{10, 0, 0, 2})
)

type recordingLink struct {
	sent [][]byte
}

func (l *recordingLink) ClearToSend() bool { return true }

func (l *recordingLink) IPSend(packet []byte) bool {
	l.sent = append(l.sent, append([]byte(nil), packet...))
	return true
}

func (l *recordingLink) last() []byte {
	if len(l.sent) == 0 {
		return nil
	}
	return l.sent[len(l.sent)-1]
}

// noopScheduler discards every scheduled task. Upstream/Tick reschedule
// themselves unconditionally on every invocation (see timer.go/upstream.go),
// so a scheduler that ran tasks synchronously would recurse forever; these
// tests instead call s.Upstream() directly wherever a pending send needs
// to be flushed.
type noopScheduler struct{}

func (noopScheduler) TaskAdd(fn func(), delayTicks, priority int, name string) {}
func (noopScheduler) TaskCancel(name string)                                  {}

func newStack(tb testing.TB) (*nwkstack.Stack, *recordingLink) {
	tb.Helper()
	cfg := nwkstack.DefaultConfig()
	cfg.LocalIPv4 = [4]byte{10, 0, 0, 1}
	s, err := nwkstack.New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	link := &recordingLink{}
	s.AttachLinkDriver(link)
	s.AttachScheduler(noopScheduler{})
	return s, link
}

// buildGvisorSYN constructs a SYN segment with gVisor's header encoders,
// independent of nwkstack's own frame.go codec.
func buildGvisorSYN(tb testing.TB, srcPort, dstPort uint16, seq uint32) []byte {
	tb.Helper()
	totalLen := header.IPv4MinimumSize + header.TCPMinimumSize
	buf := make([]byte, totalLen)

	ip := header.IPv4(buf)
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(totalLen),
		ID:          1,
		TTL:         64,
		Protocol:    uint8(header.TCPProtocolNumber),
		SrcAddr:     peerAddr,
		DstAddr:     localAddr,
	})
	ip.SetChecksum(0)
	ip.SetChecksum(^ip.CalculateChecksum())

	tcpHdr := header.TCP(buf[header.IPv4MinimumSize:])
	tcpHdr.Encode(&header.TCPFields{
		SrcPort:    srcPort,
		DstPort:    dstPort,
		SeqNum:     seq,
		AckNum:     0,
		DataOffset: header.TCPMinimumSize,
		Flags:      header.TCPFlagSyn,
		WindowSize: 2048,
	})
	xsum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, peerAddr, localAddr, uint16(header.TCPMinimumSize))
	xsum = header.Checksum(tcpHdr, xsum)
	tcpHdr.SetChecksum(^xsum)

	return buf
}

func TestGvisorBuiltSYNIsAcceptedByDownstream(t *testing.T) {
	s, _ := newStack(t)
	sock, err := s.OpenListen(80, func(*nwkstack.Socket, nwkstack.Event) {})
	if err != nil {
		t.Fatalf("OpenListen: %v", err)
	}

	packet := buildGvisorSYN(t, 4000, 80, 900)
	s.Downstream(packet)

	if sock.State != nwkstack.StateSynRec {
		t.Fatalf("state = %v, want SYN_REC", sock.State)
	}
}

// TestUpstreamOutputParsesWithGvisor takes a SYN|ACK emitted by Stack's own
// Upstream and decodes it with gVisor's header.IPv4/header.TCP accessors,
// checking agreement on every field an independent decoder would surface.
func TestUpstreamOutputParsesWithGvisor(t *testing.T) {
	s, link := newStack(t)
	if _, err := s.OpenListen(80, func(*nwkstack.Socket, nwkstack.Event) {}); err != nil {
		t.Fatalf("OpenListen: %v", err)
	}

	s.Downstream(buildGvisorSYN(t, 4000, 80, 900))
	s.Upstream()

	if len(link.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(link.sent))
	}
	raw := link.last()

	ip := header.IPv4(raw)
	if !ip.IsValid(len(raw)) {
		t.Fatalf("gvisor rejects our ipv4 header as invalid")
	}
	if ip.TransportProtocol() != header.TCPProtocolNumber {
		t.Fatalf("protocol = %v, want tcp", ip.TransportProtocol())
	}
	if ip.SourceAddress() != localAddr || ip.DestinationAddress() != peerAddr {
		t.Fatalf("src/dst = %v -> %v", ip.SourceAddress(), ip.DestinationAddress())
	}
	if !ip.IsChecksumValid() {
		t.Fatalf("gvisor rejects our ipv4 checksum")
	}

	tcpHdr := header.TCP(ip.Payload())
	if tcpHdr.DestinationPort() != 4000 || tcpHdr.SourcePort() != 80 {
		t.Fatalf("ports = %d -> %d, want 80 -> 4000", tcpHdr.SourcePort(), tcpHdr.DestinationPort())
	}
	if tcpHdr.Flags() != header.TCPFlagSyn|header.TCPFlagAck {
		t.Fatalf("flags = %v, want SYN|ACK", tcpHdr.Flags())
	}
	if tcpHdr.AckNumber() != 901 {
		t.Fatalf("ack = %d, want 901", tcpHdr.AckNumber())
	}

	payloadXsum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, ip.SourceAddress(), ip.DestinationAddress(), uint16(len(tcpHdr)))
	payloadXsum = header.Checksum(tcpHdr, payloadXsum)
	if payloadXsum != 0xffff {
		t.Fatalf("gvisor-computed tcp checksum fold = %#x, want 0xffff", payloadXsum)
	}
}
