package api

// HostScope is the namespace name used for the default network namespace.
const HostScope = ""

// ScopeName renders a namespace name for logs and reports.
func ScopeName(ns string) string {
	if ns == HostScope {
		return "host"
	}
	return ns
}

// Bridge is an OVS bridge together with the exact set of ports it must carry.
type Bridge struct {
	Name  string   `yaml:"name"`
	Ports []string `yaml:"ports"`
}

// VethPair is a pair of coupled interfaces. BridgeEnd always stays in the
// host namespace and is plugged into a bridge; PeerEnd lives in
// PeerNamespace once setup has moved it there.
type VethPair struct {
	BridgeEnd     string `yaml:"bridgeEnd"`
	PeerEnd       string `yaml:"peerEnd"`
	PeerNamespace string `yaml:"peerNamespace,omitempty"`
}

// AddressAssignment binds a CIDR to an interface in a namespace.
type AddressAssignment struct {
	Namespace string `yaml:"namespace,omitempty"`
	Interface string `yaml:"interface"`
	CIDR      string `yaml:"cidr"`
}

// RouteEntry is a static IPv4 route.
type RouteEntry struct {
	Namespace   string `yaml:"namespace,omitempty"`
	Destination string `yaml:"destination"`
	Gateway     string `yaml:"gateway"`
	Interface   string `yaml:"interface"`
}

// SysctlSetting is a kernel parameter applied to one stack.
type SysctlSetting struct {
	Namespace string `yaml:"namespace,omitempty"`
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
}

// QdiscKind is the tc kind string of a queuing discipline.
type QdiscKind string

const (
	QdiscNetem   QdiscKind = "netem"
	QdiscHTB     QdiscKind = "htb"
	QdiscDualPI2 QdiscKind = "dualpi2"
	QdiscFQ      QdiscKind = "fq"
)

// NetemParams configure the delay emulator.
type NetemParams struct {
	DelayMs uint32 `yaml:"delayMs"`
	Limit   uint32 `yaml:"limit"`
}

// HTBParams configure the rate limiter and its single class.
type HTBParams struct {
	DefaultClass uint16 `yaml:"defaultClass"`
	ClassMinor   uint16 `yaml:"classMinor"`
	RateBps      uint64 `yaml:"rateBps"`
	BurstBytes   uint32 `yaml:"burstBytes"`
}

// QdiscSpec is the desired queuing discipline tree of one interface. When
// Root is empty the interface must carry no managed root qdisc. Child, when
// set, is attached below the HTB class.
type QdiscSpec struct {
	Namespace string       `yaml:"namespace,omitempty"`
	Interface string       `yaml:"interface"`
	Root      QdiscKind    `yaml:"root,omitempty"`
	Handle    uint16       `yaml:"handle,omitempty"`
	Netem     *NetemParams `yaml:"netem,omitempty"`
	HTB       *HTBParams   `yaml:"htb,omitempty"`
	Child     QdiscKind    `yaml:"child,omitempty"`
	// ChildHandle is the major handle of Child.
	ChildHandle uint16 `yaml:"childHandle,omitempty"`
	// Replaces lists root kinds that must be removed when Root is empty
	// or different, so a previous run's tree does not survive.
	Replaces []QdiscKind `yaml:"-"`
}

// Offload lists interfaces whose segmentation offloads must be disabled.
type Offload struct {
	Namespace  string   `yaml:"namespace,omitempty"`
	Interfaces []string `yaml:"interfaces"`
}
