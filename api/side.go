package api

import (
	"fmt"
	"strings"
)

// SideID selects which of the two physical devices this host is.
type SideID string

const (
	SideA SideID = "A"
	SideB SideID = "B"
)

// ParseSideID accepts a or b in any case.
func ParseSideID(s string) (SideID, error) {
	switch SideID(strings.ToUpper(strings.TrimSpace(s))) {
	case SideA:
		return SideA, nil
	case SideB:
		return SideB, nil
	}
	return "", fmt.Errorf("unknown side %q, expected A or B", s)
}

// Peer returns the other side.
func (s SideID) Peer() SideID {
	if s == SideA {
		return SideB
	}
	return SideA
}

// number is the third octet of the side's LAN and the last octet of its
// peer-facing address.
func (s SideID) number() int {
	if s == SideA {
		return 1
	}
	return 2
}

// Side is the fixed naming and address plan of one device.
type Side struct {
	ID SideID `yaml:"id"`

	Namespace string `yaml:"namespace"`
	LanBridge string `yaml:"lanBridge"`
	WanBridge string `yaml:"wanBridge"`

	// Ingress carries traffic from the host into the router namespace.
	Ingress VethPair `yaml:"ingress"`
	// Egress carries traffic from the router namespace toward the uplink.
	Egress VethPair `yaml:"egress"`
	// HostLink connects the host stack to the LAN bridge.
	HostLink VethPair `yaml:"hostLink"`

	// Uplink is the physical interface to the other device.
	Uplink string `yaml:"uplink"`

	HostAddr          string `yaml:"hostAddr"`       // on HostLink.PeerEnd
	RouterLanAddr     string `yaml:"routerLanAddr"`  // on Ingress.PeerEnd
	RouterPeerAddr    string `yaml:"routerPeerAddr"` // on Egress.PeerEnd
	LanSubnet         string `yaml:"lanSubnet"`
	PeerLanSubnet     string `yaml:"peerLanSubnet"`
	PeerRouterNextHop string `yaml:"peerRouterNextHop"`

	// Well-known media ports handed to the video pipeline.
	OutboundMediaPort uint16 `yaml:"outboundMediaPort"`
	InboundMediaPort  uint16 `yaml:"inboundMediaPort"`
	// RemoteHost is the address the statistics poller filters on.
	RemoteHost string `yaml:"remoteHost"`
}

// DefaultUplink is used when no uplink interface is configured.
const DefaultUplink = "eth1"

const (
	outboundMediaPort = 5000
	inboundMediaPort  = 5001
)

// NewSide returns the compiled-in plan for id. uplink overrides the
// physical interface name when not empty.
func NewSide(id SideID, uplink string) (Side, error) {
	if id != SideA && id != SideB {
		return Side{}, fmt.Errorf("unknown side %q", id)
	}
	n, peer := id.number(), id.Peer().number()
	if uplink == "" {
		uplink = DefaultUplink
	}
	s := strings.ToLower(string(id))
	return Side{
		ID:        id,
		Namespace: "router-" + s,
		LanBridge: "br-" + s + "-lan",
		WanBridge: "br-" + s + "-wan",
		Ingress: VethPair{
			BridgeEnd:     "veth-" + s + "-in",
			PeerEnd:       "veth-" + s + "-in-r",
			PeerNamespace: "router-" + s,
		},
		Egress: VethPair{
			BridgeEnd:     "veth-" + s + "-out",
			PeerEnd:       "veth-" + s + "-out-r",
			PeerNamespace: "router-" + s,
		},
		HostLink: VethPair{
			BridgeEnd: "veth-" + s + "-hbr",
			PeerEnd:   "veth-" + s + "-host",
		},
		Uplink:            uplink,
		HostAddr:          fmt.Sprintf("10.0.%d.2/24", n),
		RouterLanAddr:     fmt.Sprintf("10.0.%d.1/24", n),
		RouterPeerAddr:    fmt.Sprintf("192.168.50.%d/24", n),
		LanSubnet:         fmt.Sprintf("10.0.%d.0/24", n),
		PeerLanSubnet:     fmt.Sprintf("10.0.%d.0/24", peer),
		PeerRouterNextHop: fmt.Sprintf("192.168.50.%d", peer),
		OutboundMediaPort: outboundMediaPort,
		InboundMediaPort:  inboundMediaPort,
		RemoteHost:        fmt.Sprintf("10.0.%d.2", peer),
	}, nil
}

// RouterLanGateway is RouterLanAddr without its prefix length.
func (s Side) RouterLanGateway() string {
	ip, _, _ := strings.Cut(s.RouterLanAddr, "/")
	return ip
}
