package nwkstack

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

// socketsInfo pairs a metric description with a function that samples it
// from the live socket table, mirroring the Describe/Collect-over-a-live-
// set shape of a hand-rolled prometheus.Collector.
type socketsInfo struct {
	description *prometheus.Desc
	supplier    func(s *Stack, metrics chan<- prometheus.Metric)
}

// Collector exposes socket-table occupancy, retransmit activity, and
// reassembly state as Prometheus metrics. Unlike a typical collector it
// samples the stack's own in-memory table directly rather than syscalling
// into the kernel for tcp_info, since the core owns all of this state.
type Collector struct {
	stack *Stack
	infos []socketsInfo
}

// NewCollector returns a Collector bound to stack. Registering it more
// than once, or against more than one stack, is the caller's
// responsibility to avoid.
func NewCollector(stack *Stack) *Collector {
	c := &Collector{stack: stack}
	c.addMetrics()
	return c
}

func (c *Collector) addMetrics() {
	stateGauge := prometheus.NewDesc(
		"nwkstack_tcp_sockets_by_state",
		"Number of TCP socket-table slots currently in each state.",
		[]string{"state"}, nil,
	)
	c.infos = append(c.infos, socketsInfo{
		description: stateGauge,
		supplier: func(s *Stack, metrics chan<- prometheus.Metric) {
			counts := map[TCPState]int{}
			for i := range s.sockets {
				sock := &s.sockets[i]
				if sock.Kind != KindTCP {
					continue
				}
				counts[sock.State]++
			}
			for state, n := range counts {
				metrics <- prometheus.MustNewConstMetric(stateGauge, prometheus.GaugeValue, float64(n), state.String())
			}
		},
	})

	freeGauge := prometheus.NewDesc(
		"nwkstack_free_sockets",
		"Number of unused socket-table slots.",
		nil, nil,
	)
	c.infos = append(c.infos, socketsInfo{
		description: freeGauge,
		supplier: func(s *Stack, metrics chan<- prometheus.Metric) {
			free := 0
			for i := range s.sockets {
				if s.sockets[i].Kind == KindFree {
					free++
				}
			}
			metrics <- prometheus.MustNewConstMetric(freeGauge, prometheus.GaugeValue, float64(free))
		},
	})

	retryGauge := prometheus.NewDesc(
		"nwkstack_tcp_socket_retries_remaining",
		"Retransmission attempts remaining for each non-idle TCP socket slot.",
		[]string{"local_port"}, nil,
	)
	c.infos = append(c.infos, socketsInfo{
		description: retryGauge,
		supplier: func(s *Stack, metrics chan<- prometheus.Metric) {
			for i := range s.sockets {
				sock := &s.sockets[i]
				if sock.Kind != KindTCP || sock.State == StateIdle {
					continue
				}
				metrics <- prometheus.MustNewConstMetric(
					retryGauge, prometheus.GaugeValue, float64(sock.Retry), strconv.FormatUint(uint64(sock.LocalPort), 10),
				)
			}
		},
	})

	oooGauge := prometheus.NewDesc(
		"nwkstack_tcp_reassembly_out_of_order_bytes",
		"Size of the single out-of-order extent currently stashed per TCP socket, if any.",
		[]string{"local_port"}, nil,
	)
	c.infos = append(c.infos, socketsInfo{
		description: oooGauge,
		supplier: func(s *Stack, metrics chan<- prometheus.Metric) {
			for i := range s.sockets {
				sock := &s.sockets[i]
				if sock.Kind != KindTCP || sock.RxOOEnd == 0 {
					continue
				}
				metrics <- prometheus.MustNewConstMetric(
					oooGauge, prometheus.GaugeValue, float64(sock.RxOOEnd-sock.RxOOStart), strconv.FormatUint(uint64(sock.LocalPort), 10),
				)
			}
		},
	})

	pendingGauge := prometheus.NewDesc(
		"nwkstack_sockets_pending_send",
		"Number of socket-table slots with a segment queued for the next Upstream pass.",
		nil, nil,
	)
	c.infos = append(c.infos, socketsInfo{
		description: pendingGauge,
		supplier: func(s *Stack, metrics chan<- prometheus.Metric) {
			pending := 0
			for i := range s.sockets {
				if s.sockets[i].Kind != KindFree && s.sockets[i].ToSend != 0 {
					pending++
				}
			}
			metrics <- prometheus.MustNewConstMetric(pendingGauge, prometheus.GaugeValue, float64(pending))
		},
	})
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, info := range c.infos {
		info.supplier(c.stack, metrics)
	}
}
