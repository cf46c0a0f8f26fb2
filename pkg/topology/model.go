// Package topology derives the desired state of one side of the testbed.
// It never touches the kernel; the orchestrators in pkg consume a Plan.
package topology

import (
	"L4STestbed/api"
	"L4STestbed/pkg/sysctl"
	"L4STestbed/pkg/util"
	"fmt"
	"strconv"
)

// MaxInterfaceNameLength is IFNAMSIZ minus the terminating NUL.
const MaxInterfaceNameLength = 15

const (
	netemHandle   = 1
	netemLimit    = 300000
	htbHandle     = 1
	htbClassMinor = 1
	aqmHandle     = 2

	minBurstBytes = 32768
)

// Plan is the full desired state of one side. Config is nil for plans built
// by ForSide, which only carry what teardown needs.
type Plan struct {
	Side   api.Side              `yaml:"side"`
	Config *api.ExperimentConfig `yaml:"config,omitempty"`

	Bridges []api.Bridge `yaml:"bridges"`
	// RouterPairs are moved into the router namespace, ingress first.
	RouterPairs []api.VethPair `yaml:"routerPairs"`
	HostLink    api.VethPair   `yaml:"hostLink"`

	NamespaceAddrs []api.AddressAssignment `yaml:"namespaceAddrs"`
	HostAddr       api.AddressAssignment   `yaml:"hostAddr"`
	NamespaceRoute api.RouteEntry          `yaml:"namespaceRoute"`
	HostRoute      api.RouteEntry          `yaml:"hostRoute"`

	Forwarding []api.SysctlSetting `yaml:"forwarding"`
	Transport  []api.SysctlSetting `yaml:"transport,omitempty"`
	Modules    []string            `yaml:"modules,omitempty"`

	Ingress   api.QdiscSpec `yaml:"ingressQdisc"`
	Egress    api.QdiscSpec `yaml:"egressQdisc"`
	HostQdisc api.QdiscSpec `yaml:"hostQdisc"`

	Offload []api.Offload `yaml:"offload"`
}

// ForSide builds the configuration independent part of a plan.
func ForSide(side api.Side) *Plan {
	ns := side.Namespace
	p := &Plan{
		Side: side,
		Bridges: []api.Bridge{
			{Name: side.LanBridge, Ports: []string{side.Ingress.BridgeEnd, side.HostLink.BridgeEnd}},
			{Name: side.WanBridge, Ports: []string{side.Egress.BridgeEnd, side.Uplink}},
		},
		RouterPairs: []api.VethPair{side.Ingress, side.Egress},
		HostLink:    side.HostLink,
		NamespaceAddrs: []api.AddressAssignment{
			{Namespace: ns, Interface: side.Ingress.PeerEnd, CIDR: side.RouterLanAddr},
			{Namespace: ns, Interface: side.Egress.PeerEnd, CIDR: side.RouterPeerAddr},
		},
		HostAddr: api.AddressAssignment{Interface: side.HostLink.PeerEnd, CIDR: side.HostAddr},
		NamespaceRoute: api.RouteEntry{
			Namespace:   ns,
			Destination: side.PeerLanSubnet,
			Gateway:     side.PeerRouterNextHop,
			Interface:   side.Egress.PeerEnd,
		},
		HostRoute: api.RouteEntry{
			Destination: side.PeerLanSubnet,
			Gateway:     side.RouterLanGateway(),
			Interface:   side.HostLink.PeerEnd,
		},
		Forwarding: []api.SysctlSetting{
			{Key: sysctl.KeyIPForward, Value: "1"},
			{Namespace: ns, Key: sysctl.KeyIPForward, Value: "1"},
		},
		Offload: []api.Offload{
			{Interfaces: []string{
				side.Uplink,
				side.Ingress.BridgeEnd,
				side.Egress.BridgeEnd,
				side.HostLink.BridgeEnd,
				side.HostLink.PeerEnd,
			}},
			{Namespace: ns, Interfaces: []string{side.Ingress.PeerEnd, side.Egress.PeerEnd}},
		},
	}
	p.Ingress = api.QdiscSpec{
		Namespace: ns,
		Interface: side.Ingress.PeerEnd,
		Replaces:  []api.QdiscKind{api.QdiscNetem},
	}
	p.Egress = api.QdiscSpec{
		Namespace: ns,
		Interface: side.Egress.PeerEnd,
		Replaces:  []api.QdiscKind{api.QdiscHTB},
	}
	p.HostQdisc = api.QdiscSpec{
		Interface: side.HostLink.PeerEnd,
		Replaces:  []api.QdiscKind{api.QdiscFQ},
	}
	return p
}

// Build derives the full plan for side under cfg.
func Build(side api.Side, cfg api.ExperimentConfig) *Plan {
	p := ForSide(side)
	p.Config = &cfg
	ns := side.Namespace

	ecn := strconv.Itoa(int(cfg.ECN))
	cc := string(cfg.CongestionControl)
	for _, scope := range []string{api.HostScope, ns} {
		p.Transport = append(p.Transport,
			api.SysctlSetting{Namespace: scope, Key: sysctl.KeyTCPECN, Value: ecn},
			api.SysctlSetting{Namespace: scope, Key: sysctl.KeyTCPCongestionControl, Value: cc},
			api.SysctlSetting{Namespace: scope, Key: sysctl.KeyTCPNoMetricsSave, Value: "1"},
		)
	}
	if cfg.CongestionControl == api.CCBBR {
		// BBR relies on pacing from fq
		p.Transport = append(p.Transport, api.SysctlSetting{Key: sysctl.KeyDefaultQdisc, Value: string(api.QdiscFQ)})
	}

	if m := cfg.CongestionControl.KernelModule(); m != "" {
		p.Modules = append(p.Modules, m)
	}
	if cfg.AQMEnabled {
		p.Modules = append(p.Modules, "sch_dualpi2")
	}

	if cfg.DelayEnabled() {
		p.Ingress.Root = api.QdiscNetem
		p.Ingress.Handle = netemHandle
		p.Ingress.Netem = &api.NetemParams{DelayMs: cfg.DelayMs, Limit: netemLimit}
	}

	p.Egress.Root = api.QdiscHTB
	p.Egress.Handle = htbHandle
	p.Egress.HTB = &api.HTBParams{
		DefaultClass: htbClassMinor,
		ClassMinor:   htbClassMinor,
		RateBps:      cfg.Rate.BitsPerSecond(),
		BurstBytes:   Burst(cfg.Rate.BitsPerSecond()),
	}
	if cfg.AQMEnabled {
		p.Egress.Child = api.QdiscDualPI2
		p.Egress.ChildHandle = aqmHandle
	}

	if cfg.CongestionControl == api.CCBBR {
		p.HostQdisc.Root = api.QdiscFQ
	}
	return p
}

// Burst returns an HTB bucket holding 10ms of traffic at bps, never less
// than minBurstBytes.
func Burst(bps uint64) uint32 {
	b := bps / 100 / 8
	if b < minBurstBytes {
		return minBurstBytes
	}
	if b > 1<<31 {
		return 1 << 31
	}
	return uint32(b)
}

// QdiscSpecs returns every qdisc spec of the plan in setup order.
func (p *Plan) QdiscSpecs() []api.QdiscSpec {
	return []api.QdiscSpec{p.Ingress, p.Egress, p.HostQdisc}
}

// Validate checks interface names and addresses of the plan. It is run
// before anything is mutated so that a bad uplink override fails early.
func (p *Plan) Validate() error {
	names := []string{p.Side.Namespace, p.Side.Uplink, p.HostLink.BridgeEnd, p.HostLink.PeerEnd}
	for _, pair := range p.RouterPairs {
		names = append(names, pair.BridgeEnd, pair.PeerEnd)
	}
	for _, b := range p.Bridges {
		names = append(names, b.Name)
	}
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("empty interface name in plan for side %s", p.Side.ID)
		}
		if len(n) > MaxInterfaceNameLength {
			return fmt.Errorf("name %q exceeds %d characters", n, MaxInterfaceNameLength)
		}
	}

	addrs := append([]api.AddressAssignment{p.HostAddr}, p.NamespaceAddrs...)
	for _, a := range addrs {
		if !util.CheckIpv4Cidr(a.CIDR) {
			return fmt.Errorf("invalid address %q for %s", a.CIDR, a.Interface)
		}
	}
	for _, r := range []api.RouteEntry{p.NamespaceRoute, p.HostRoute} {
		if !util.CheckIpv4Cidr(r.Destination) || !util.CheckIpv4(r.Gateway) {
			return fmt.Errorf("invalid route %s via %s", r.Destination, r.Gateway)
		}
	}
	// the next hops have to be on link
	if ok, err := util.SameSubnet(p.HostAddr.CIDR, p.HostRoute.Gateway); err != nil || !ok {
		return fmt.Errorf("host route gateway %s is not on %s", p.HostRoute.Gateway, p.HostAddr.CIDR)
	}
	if ok, err := util.SameSubnet(p.Side.RouterPeerAddr, p.NamespaceRoute.Gateway); err != nil || !ok {
		return fmt.Errorf("router next hop %s is not on %s", p.NamespaceRoute.Gateway, p.Side.RouterPeerAddr)
	}
	return nil
}
