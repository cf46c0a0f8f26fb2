package link

import (
	"L4STestbed/api"
	"L4STestbed/pkg/node"
	"errors"
	"fmt"
	"net"

	"github.com/apex/log"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// LinkManager configures interfaces, addresses and routes with netlink.
// Unless stated otherwise its methods act on the namespace of the calling
// thread; the controller enters the right namespace first.
type LinkManager struct {
	nm     *node.NamespaceManager
	logger log.Interface
}

func NewLinkManager(nm *node.NamespaceManager) *LinkManager {
	return &LinkManager{
		nm:     nm,
		logger: log.WithField("component", "link"),
	}
}

// classify maps netlink and errno failures onto api.ErrNotFound and
// api.ErrAlreadyExists so callers can decide what is fatal.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	what := fmt.Sprintf(format, args...)
	var notFound netlink.LinkNotFoundError
	switch {
	case errors.As(err, &notFound),
		errors.Is(err, unix.ENODEV),
		errors.Is(err, unix.ENOENT),
		errors.Is(err, unix.ESRCH),
		errors.Is(err, unix.EADDRNOTAVAIL):
		return fmt.Errorf("%s: %w: %v", what, api.ErrNotFound, err)
	case errors.Is(err, unix.EEXIST):
		return fmt.Errorf("%s: %w", what, api.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %v", what, err)
}

// byName looks up an interface in the current namespace.
func byName(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, classify(err, "failed to get link %s", name)
	}
	return link, nil
}

// Exists reports whether name is present in the current namespace.
func (lm *LinkManager) Exists(name string) (bool, error) {
	_, err := byName(name)
	if err == nil {
		return true, nil
	}
	if api.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// CreateVethPair creates both ends of pair in the host namespace. The check
// is keyed on BridgeEnd: once the pair exists api.ErrAlreadyExists is
// returned, even if PeerEnd has moved elsewhere.
func (lm *LinkManager) CreateVethPair(pair api.VethPair) error {
	exists, err := lm.Exists(pair.BridgeEnd)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("veth %s: %w", pair.BridgeEnd, api.ErrAlreadyExists)
	}

	linkAttr := netlink.NewLinkAttrs()
	linkAttr.Name = pair.BridgeEnd
	linkAttr.MTU = 1500

	veth := &netlink.Veth{
		LinkAttrs: linkAttr,
		PeerName:  pair.PeerEnd,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return classify(err, "failed to create veth pair %s/%s", pair.BridgeEnd, pair.PeerEnd)
	}
	return nil
}

// MoveToNamespace moves a host interface into the named namespace. If the
// interface is already inside it api.ErrAlreadyExists is returned.
func (lm *LinkManager) MoveToNamespace(name, namespace string) error {
	link, err := byName(name)
	if api.IsNotFound(err) {
		moved := false
		if inErr := lm.nm.Do(namespace, func() error {
			var e error
			moved, e = lm.Exists(name)
			return e
		}); inErr != nil {
			return inErr
		}
		if moved {
			return fmt.Errorf("link %s in %s: %w", name, namespace, api.ErrAlreadyExists)
		}
		return err
	}
	if err != nil {
		return err
	}

	target, err := lm.nm.Open(namespace)
	if err != nil {
		return err
	}
	defer target.Close()

	if err := netlink.LinkSetNsFd(link, int(target.Fd())); err != nil {
		return classify(err, "failed to move %s into %s", name, namespace)
	}
	return nil
}

// SetUp brings name up.
func (lm *LinkManager) SetUp(name string) error {
	link, err := byName(name)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return classify(err, "failed to set link %s up", name)
	}
	return nil
}

// SetDown brings name down.
func (lm *LinkManager) SetDown(name string) error {
	link, err := byName(name)
	if err != nil {
		return err
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return classify(err, "failed to set link %s down", name)
	}
	return nil
}

// Delete removes name; deleting one end of a veth pair removes both.
func (lm *LinkManager) Delete(name string) error {
	link, err := byName(name)
	if err != nil {
		return err
	}
	if err := netlink.LinkDel(link); err != nil {
		return classify(err, "failed to delete link %s", name)
	}
	return nil
}

// AddAddr assigns cidr to name.
func (lm *LinkManager) AddAddr(name, cidr string) error {
	link, err := byName(name)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("failed to parse CIDR %s: %v", cidr, err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return classify(err, "failed to add %s to %s", cidr, name)
	}
	return nil
}

// FlushAddrs removes every IPv4 address of name and returns how many were
// removed.
func (lm *LinkManager) FlushAddrs(name string) (int, error) {
	link, err := byName(name)
	if err != nil {
		return 0, err
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return 0, classify(err, "failed to list addresses of %s", name)
	}
	for i := range addrs {
		if err := netlink.AddrDel(link, &addrs[i]); err != nil {
			return i, classify(err, "failed to remove %s from %s", addrs[i].IPNet, name)
		}
	}
	return len(addrs), nil
}

func toRoute(r api.RouteEntry) (*netlink.Route, error) {
	link, err := byName(r.Interface)
	if err != nil {
		return nil, err
	}
	_, dst, err := net.ParseCIDR(r.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to parse route destination %s: %v", r.Destination, err)
	}
	gw := net.ParseIP(r.Gateway)
	if gw == nil {
		return nil, fmt.Errorf("invalid gateway %q", r.Gateway)
	}
	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       dst,
		Gw:        gw,
	}, nil
}

// AddRoute installs r.
func (lm *LinkManager) AddRoute(r api.RouteEntry) error {
	route, err := toRoute(r)
	if err != nil {
		return err
	}
	if err := netlink.RouteAdd(route); err != nil {
		return classify(err, "failed to add route %s via %s", r.Destination, r.Gateway)
	}
	return nil
}

// DelRoute removes r. When its interface is already gone the route is
// matched on destination and gateway only.
func (lm *LinkManager) DelRoute(r api.RouteEntry) error {
	route, err := toRoute(r)
	if api.IsNotFound(err) {
		_, dst, perr := net.ParseCIDR(r.Destination)
		if perr != nil {
			return fmt.Errorf("failed to parse route destination %s: %v", r.Destination, perr)
		}
		route = &netlink.Route{Dst: dst, Gw: net.ParseIP(r.Gateway)}
	} else if err != nil {
		return err
	}
	if err := netlink.RouteDel(route); err != nil {
		return classify(err, "failed to delete route %s via %s", r.Destination, r.Gateway)
	}
	return nil
}
