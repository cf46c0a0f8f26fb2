package api

import "fmt"

// CongestionControl names a TCP congestion control algorithm as the kernel
// knows it (net.ipv4.tcp_congestion_control).
type CongestionControl string

const (
	CCCubic  CongestionControl = "cubic"
	CCBBR    CongestionControl = "bbr"
	CCReno   CongestionControl = "reno"
	CCPrague CongestionControl = "prague"
)

// KernelModule returns the module that has to be loaded before the
// algorithm can be selected, or "" when it is built in.
func (cc CongestionControl) KernelModule() string {
	switch cc {
	case CCBBR:
		return "tcp_bbr"
	case CCPrague:
		return "tcp_prague"
	}
	return ""
}

// ECNMode is the value written to net.ipv4.tcp_ecn (0..3).
type ECNMode uint8

// RateUnit is the suffix of an HTB rate.
type RateUnit string

const (
	Kbit RateUnit = "Kbit"
	Mbit RateUnit = "Mbit"
	Gbit RateUnit = "Gbit"
)

// Multiplier converts the unit to bits per second. Unknown units yield 0.
func (u RateUnit) Multiplier() uint64 {
	switch u {
	case Kbit:
		return 1_000
	case Mbit:
		return 1_000_000
	case Gbit:
		return 1_000_000_000
	}
	return 0
}

// Rate is a rate limit such as 10Mbit.
type Rate struct {
	Value uint64
	Unit  RateUnit
}

// BitsPerSecond uses SI multipliers, the same way tc does.
func (r Rate) BitsPerSecond() uint64 {
	return r.Value * r.Unit.Multiplier()
}

func (r Rate) String() string {
	return fmt.Sprintf("%d%s", r.Value, r.Unit)
}

// MarshalYAML renders the rate the way it is typed on the command line.
func (r Rate) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}

// ExperimentConfig is the validated parameter set of one setup invocation.
// It is built by util.ParseExperimentConfig and never mutated afterwards.
type ExperimentConfig struct {
	DelayMs           uint32            `yaml:"delayMs"`
	ECN               ECNMode           `yaml:"ecn"`
	CongestionControl CongestionControl `yaml:"congestionControl"`
	AQMEnabled        bool              `yaml:"dualpi2"`
	Rate              Rate              `yaml:"htbRate"`
}

// DelayEnabled reports whether a delay emulator is attached at all.
// A zero delay omits the netem qdisc instead of configuring 0ms.
func (c ExperimentConfig) DelayEnabled() bool {
	return c.DelayMs > 0
}

// RawParams are the five experiment parameters exactly as typed on the
// command line. An empty string means the flag was not given.
type RawParams struct {
	Delay   string
	ECN     string
	CC      string
	DualPI2 string
	HTBRate string
}
