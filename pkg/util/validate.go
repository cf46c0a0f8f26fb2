package util

import (
	"L4STestbed/api"
	"math"
	"regexp"
	"strconv"
)

// Flag names as they appear on the command line.
const (
	FlagDelay   = "delay"
	FlagECN     = "ecn"
	FlagCC      = "cc"
	FlagDualPI2 = "dualpi2"
	FlagHTBRate = "htb_rate"
)

// MaxDelayMs is the largest delay netem can hold: the kernel keeps it as
// 32-bit scheduler ticks, 15.625 per microsecond on current kernels.
const MaxDelayMs = 274877

var (
	delayRe = regexp.MustCompile(`^[0-9]+$`)
	ecnRe   = regexp.MustCompile(`^[0-3]$`)
	rateRe  = regexp.MustCompile(`^([0-9]+)([KMG]bit)$`)
)

// ParseExperimentConfig validates the raw parameters. Missing parameters are
// reported before invalid ones, each group in command line order.
func ParseExperimentConfig(p api.RawParams) (api.ExperimentConfig, error) {
	fields := []struct {
		name  string
		value string
	}{
		{FlagDelay, p.Delay},
		{FlagECN, p.ECN},
		{FlagCC, p.CC},
		{FlagDualPI2, p.DualPI2},
		{FlagHTBRate, p.HTBRate},
	}
	for _, f := range fields {
		if f.value == "" {
			return api.ExperimentConfig{}, &api.ValidationError{Field: f.name, Missing: true}
		}
	}

	var cfg api.ExperimentConfig

	delay, err := parseDelay(p.Delay)
	if err != nil {
		return api.ExperimentConfig{}, err
	}
	cfg.DelayMs = delay

	if !ecnRe.MatchString(p.ECN) {
		return api.ExperimentConfig{}, invalid(FlagECN, p.ECN, "must be one of 0, 1, 2, 3")
	}
	cfg.ECN = api.ECNMode(p.ECN[0] - '0')

	switch cc := api.CongestionControl(p.CC); cc {
	case api.CCCubic, api.CCBBR, api.CCReno, api.CCPrague:
		cfg.CongestionControl = cc
	default:
		return api.ExperimentConfig{}, invalid(FlagCC, p.CC, "must be one of cubic, bbr, reno, prague")
	}

	switch p.DualPI2 {
	case "0":
		cfg.AQMEnabled = false
	case "1":
		cfg.AQMEnabled = true
	default:
		return api.ExperimentConfig{}, invalid(FlagDualPI2, p.DualPI2, "must be 0 or 1")
	}

	rate, err := ParseRate(p.HTBRate)
	if err != nil {
		return api.ExperimentConfig{}, err
	}
	cfg.Rate = rate

	return cfg, nil
}

func parseDelay(s string) (uint32, error) {
	if !delayRe.MatchString(s) {
		return 0, invalid(FlagDelay, s, "must be a non-negative integer number of milliseconds")
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v > MaxDelayMs {
		return 0, invalid(FlagDelay, s, "out of range")
	}
	return uint32(v), nil
}

// ParseRate parses strings such as 10Mbit. Decimals, a missing unit and
// lowercase units are rejected.
func ParseRate(s string) (api.Rate, error) {
	m := rateRe.FindStringSubmatch(s)
	if m == nil {
		return api.Rate{}, invalid(FlagHTBRate, s, "must match <int>Kbit, <int>Mbit or <int>Gbit")
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return api.Rate{}, invalid(FlagHTBRate, s, "out of range")
	}
	if v == 0 {
		return api.Rate{}, invalid(FlagHTBRate, s, "must be greater than zero")
	}
	r := api.Rate{Value: v, Unit: api.RateUnit(m[2])}
	// the kernel carries rates as 64 bit bytes per second
	if v > math.MaxUint64/r.Unit.Multiplier() {
		return api.Rate{}, invalid(FlagHTBRate, s, "out of range")
	}
	return r, nil
}

func invalid(field, value, reason string) error {
	return &api.ValidationError{Field: field, Value: value, Reason: reason}
}
