package nwkstack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables of §6 plus the socket-table sizing and
// addressing of §3. It is designed to be embedded zero-value-safe via
// DefaultConfig, or loaded from YAML for a deployed target.
type Config struct {
	// LocalIPv4 is ip_local: the address this stack answers to.
	LocalIPv4 [4]byte `yaml:"local_ipv4"`
	// BroadcastIPv4 is ip_broadcast: the sentinel destination treated as
	// "addressed to every local socket listening on broadcast".
	BroadcastIPv4 [4]byte `yaml:"broadcast_ipv4"`

	// MaxSockets sizes the fixed socket table.
	MaxSockets int `yaml:"max_sockets"`
	// MaxSegmentPayload sizes each socket's tx buffer (and so bounds
	// tx_size) and the scratch send buffer. Validate does not check it
	// against the 1000-byte MTU of §6; the default of 512 keeps a TCP
	// segment with its 40 header bytes under it.
	MaxSegmentPayload int `yaml:"max_segment_payload"`
	// RxBufferSize sizes each socket's receive reassembly buffer.
	RxBufferSize int `yaml:"rx_buffer_size"`

	// TimeoutTCP is TIMEOUT_TCP: the base retransmission timeout, in
	// ticks.
	TimeoutTCP int `yaml:"timeout_tcp_ticks"`
	// RetriesTCP is RETRIES_TCP: the retransmission budget per socket.
	RetriesTCP int `yaml:"retries_tcp"`
	// TickTCP is TICK_TCP: the period, in scheduler ticks, between
	// successive Tick invocations.
	TickTCP int `yaml:"tick_tcp_ticks"`

	// EnableICMPEcho governs the supplemented ICMP echo-reply feature.
	EnableICMPEcho bool `yaml:"enable_icmp_echo"`
}

// DefaultConfig returns tunables adequate for a LAN-scale embedded target:
// an 8-socket table, 1 KiB per-socket receive buffers, and a retry/timeout
// schedule matching the values a mega65-class target ran in practice.
func DefaultConfig() Config {
	return Config{
		LocalIPv4:         [4]byte{10, 0, 0, 1},
		BroadcastIPv4:     [4]byte{255, 255, 255, 255},
		MaxSockets:        8,
		MaxSegmentPayload: 512,
		RxBufferSize:      1024,
		TimeoutTCP:        20,
		RetriesTCP:        5,
		TickTCP:           10,
		EnableICMPEcho:    true,
	}
}

// Validate rejects configurations that would violate the invariants of §3.
func (c Config) Validate() error {
	if c.MaxSockets <= 0 {
		return fmt.Errorf("max_sockets must be positive, got %d", c.MaxSockets)
	}
	if c.RxBufferSize <= 0 {
		return fmt.Errorf("rx_buffer_size must be positive, got %d", c.RxBufferSize)
	}
	if c.MaxSegmentPayload <= 0 {
		return fmt.Errorf("max_segment_payload must be positive, got %d", c.MaxSegmentPayload)
	}
	if c.TimeoutTCP <= 0 {
		return fmt.Errorf("timeout_tcp_ticks must be positive, got %d", c.TimeoutTCP)
	}
	if c.RetriesTCP <= 0 {
		return fmt.Errorf("retries_tcp must be positive, got %d", c.RetriesTCP)
	}
	if c.TickTCP <= 0 {
		return fmt.Errorf("tick_tcp_ticks must be positive, got %d", c.TickTCP)
	}
	return nil
}

// LoadConfigFile reads and validates a YAML config file, starting from
// DefaultConfig so a partial file only overrides the fields it sets.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nwkstack: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("nwkstack: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("nwkstack: invalid config: %w", err)
	}
	return cfg, nil
}
