package pkg

import (
	"L4STestbed/api"
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// fakeController keeps an in-memory model of the kernel objects the
// orchestrators touch. Every call is recorded; failOn injects errors.
type fakeController struct {
	calls  []string
	failOn map[string]error

	bridges    map[string][]string
	namespaces map[string]bool
	// links per scope, HostScope included
	links   map[string]map[string]bool
	peers   map[string]string
	addrs   map[string][]string
	routes  map[string]api.RouteEntry
	sysctls map[string]map[string]string
	modules []string
	qdiscs  map[string]api.QdiscSpec
	// offloaded tracks interfaces whose offloads are already off
	offloaded map[string]bool

	restartConfigured bool
}

func newFakeController() *fakeController {
	f := &fakeController{
		failOn:     map[string]error{},
		bridges:    map[string][]string{},
		namespaces: map[string]bool{},
		links:      map[string]map[string]bool{api.HostScope: {"lo": true, "eth1": true}},
		peers:      map[string]string{},
		addrs:      map[string][]string{},
		routes:     map[string]api.RouteEntry{},
		sysctls:    map[string]map[string]string{api.HostScope: defaultSysctls()},
		qdiscs:     map[string]api.QdiscSpec{},
		offloaded:  map[string]bool{},
	}
	// the uplink usually carries an address from DHCP
	f.addrs[key(api.HostScope, "eth1")] = []string{"192.0.2.10/24"}
	return f
}

func defaultSysctls() map[string]string {
	return map[string]string{
		"net.ipv4.tcp_ecn":                "2",
		"net.ipv4.tcp_congestion_control": "cubic",
		"net.ipv4.ip_forward":             "0",
		"net.ipv4.tcp_no_metrics_save":    "0",
		"net.core.default_qdisc":          "fq_codel",
	}
}

func key(scope, name string) string {
	return api.ScopeName(scope) + "/" + name
}

func (f *fakeController) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	f.calls = append(f.calls, call)
	if err, ok := f.failOn[call]; ok {
		return err
	}
	return nil
}

func notFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, api.ErrNotFound)...)
}

func alreadyExists(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, api.ErrAlreadyExists)...)
}

func (f *fakeController) scopeLinks(scope string) (map[string]bool, error) {
	links, ok := f.links[scope]
	if !ok {
		return nil, notFound("namespace %s", scope)
	}
	return links, nil
}

func (f *fakeController) hasLink(scope, name string) error {
	links, err := f.scopeLinks(scope)
	if err != nil {
		return err
	}
	if !links[name] {
		return notFound("link %s in %s", name, api.ScopeName(scope))
	}
	return nil
}

// linkScope returns where name currently lives.
func (f *fakeController) linkScope(name string) (string, bool) {
	for scope, links := range f.links {
		if links[name] {
			return scope, true
		}
	}
	return "", false
}

func (f *fakeController) removeLink(scope, name string) {
	delete(f.links[scope], name)
	delete(f.qdiscs, key(scope, name))
	delete(f.addrs, key(scope, name))
	delete(f.offloaded, key(scope, name))
	for k, r := range f.routes {
		if r.Namespace == scope && r.Interface == name {
			delete(f.routes, k)
		}
	}
	for b, ports := range f.bridges {
		f.bridges[b] = slices.DeleteFunc(ports, func(p string) bool { return scope == api.HostScope && p == name })
	}
	// a veth pair goes away as a whole
	if peer, ok := f.peers[name]; ok {
		delete(f.peers, name)
		delete(f.peers, peer)
		if ps, ok := f.linkScope(peer); ok {
			f.removeLink(ps, peer)
		}
	}
}

func (f *fakeController) ListBridges() ([]string, error) {
	if err := f.record("ListBridges"); err != nil {
		return nil, err
	}
	var out []string
	for b := range f.bridges {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeController) CreateBridge(name string) error {
	if err := f.record("CreateBridge %s", name); err != nil {
		return err
	}
	if _, ok := f.bridges[name]; ok {
		return alreadyExists("bridge %s", name)
	}
	f.bridges[name] = []string{}
	return nil
}

func (f *fakeController) DeleteBridge(name string) error {
	if err := f.record("DeleteBridge %s", name); err != nil {
		return err
	}
	if _, ok := f.bridges[name]; !ok {
		return notFound("bridge %s", name)
	}
	delete(f.bridges, name)
	return nil
}

func (f *fakeController) BridgePorts(bridge string) ([]string, error) {
	if err := f.record("BridgePorts %s", bridge); err != nil {
		return nil, err
	}
	ports, ok := f.bridges[bridge]
	if !ok {
		return nil, notFound("bridge %s", bridge)
	}
	return slices.Clone(ports), nil
}

func (f *fakeController) AddBridgePort(bridge, port string) error {
	if err := f.record("AddBridgePort %s %s", bridge, port); err != nil {
		return err
	}
	ports, ok := f.bridges[bridge]
	if !ok {
		return notFound("bridge %s", bridge)
	}
	if err := f.hasLink(api.HostScope, port); err != nil {
		return err
	}
	if slices.Contains(ports, port) {
		return alreadyExists("port %s on %s", port, bridge)
	}
	f.bridges[bridge] = append(ports, port)
	return nil
}

func (f *fakeController) DeleteBridgePort(bridge, port string) error {
	if err := f.record("DeleteBridgePort %s %s", bridge, port); err != nil {
		return err
	}
	ports, ok := f.bridges[bridge]
	if !ok || !slices.Contains(ports, port) {
		return notFound("port %s on %s", port, bridge)
	}
	f.bridges[bridge] = slices.DeleteFunc(ports, func(p string) bool { return p == port })
	return nil
}

func (f *fakeController) NamespaceExists(name string) (bool, error) {
	if err := f.record("NamespaceExists %s", name); err != nil {
		return false, err
	}
	return f.namespaces[name], nil
}

func (f *fakeController) CreateNamespace(name string) error {
	if err := f.record("CreateNamespace %s", name); err != nil {
		return err
	}
	if f.namespaces[name] {
		return alreadyExists("namespace %s", name)
	}
	f.namespaces[name] = true
	f.links[name] = map[string]bool{"lo": true}
	f.sysctls[name] = defaultSysctls()
	return nil
}

func (f *fakeController) DeleteNamespace(name string) error {
	if err := f.record("DeleteNamespace %s", name); err != nil {
		return err
	}
	if !f.namespaces[name] {
		return notFound("namespace %s", name)
	}
	for link := range f.links[name] {
		f.removeLink(name, link)
	}
	delete(f.namespaces, name)
	delete(f.links, name)
	delete(f.sysctls, name)
	return nil
}

func (f *fakeController) LinkExists(namespace, name string) (bool, error) {
	if err := f.record("LinkExists %s %s", api.ScopeName(namespace), name); err != nil {
		return false, err
	}
	links, err := f.scopeLinks(namespace)
	if err != nil {
		return false, err
	}
	return links[name], nil
}

func (f *fakeController) CreateVethPair(pair api.VethPair) error {
	if err := f.record("CreateVethPair %s %s", pair.BridgeEnd, pair.PeerEnd); err != nil {
		return err
	}
	if f.links[api.HostScope][pair.BridgeEnd] {
		return alreadyExists("link %s", pair.BridgeEnd)
	}
	f.links[api.HostScope][pair.BridgeEnd] = true
	f.links[api.HostScope][pair.PeerEnd] = true
	f.peers[pair.BridgeEnd] = pair.PeerEnd
	f.peers[pair.PeerEnd] = pair.BridgeEnd
	return nil
}

func (f *fakeController) MoveLink(name, namespace string) error {
	if err := f.record("MoveLink %s %s", name, namespace); err != nil {
		return err
	}
	target, err := f.scopeLinks(namespace)
	if err != nil {
		return err
	}
	if target[name] {
		return alreadyExists("link %s in %s", name, namespace)
	}
	if err := f.hasLink(api.HostScope, name); err != nil {
		return err
	}
	delete(f.links[api.HostScope], name)
	target[name] = true
	return nil
}

func (f *fakeController) SetLinkUp(namespace, name string) error {
	if err := f.record("SetLinkUp %s %s", api.ScopeName(namespace), name); err != nil {
		return err
	}
	return f.hasLink(namespace, name)
}

func (f *fakeController) SetLinkDown(namespace, name string) error {
	if err := f.record("SetLinkDown %s %s", api.ScopeName(namespace), name); err != nil {
		return err
	}
	return f.hasLink(namespace, name)
}

func (f *fakeController) DeleteLink(namespace, name string) error {
	if err := f.record("DeleteLink %s %s", api.ScopeName(namespace), name); err != nil {
		return err
	}
	if err := f.hasLink(namespace, name); err != nil {
		return err
	}
	f.removeLink(namespace, name)
	return nil
}

func (f *fakeController) FlushAddrs(namespace, name string) (int, error) {
	if err := f.record("FlushAddrs %s %s", api.ScopeName(namespace), name); err != nil {
		return 0, err
	}
	if err := f.hasLink(namespace, name); err != nil {
		return 0, err
	}
	n := len(f.addrs[key(namespace, name)])
	delete(f.addrs, key(namespace, name))
	return n, nil
}

func (f *fakeController) AddAddr(a api.AddressAssignment) error {
	if err := f.record("AddAddr %s %s %s", api.ScopeName(a.Namespace), a.Interface, a.CIDR); err != nil {
		return err
	}
	if err := f.hasLink(a.Namespace, a.Interface); err != nil {
		return err
	}
	k := key(a.Namespace, a.Interface)
	if slices.Contains(f.addrs[k], a.CIDR) {
		return alreadyExists("address %s on %s", a.CIDR, a.Interface)
	}
	f.addrs[k] = append(f.addrs[k], a.CIDR)
	return nil
}

func (f *fakeController) AddRoute(r api.RouteEntry) error {
	if err := f.record("AddRoute %s %s", api.ScopeName(r.Namespace), r.Destination); err != nil {
		return err
	}
	if err := f.hasLink(r.Namespace, r.Interface); err != nil {
		return err
	}
	k := key(r.Namespace, r.Destination)
	if _, ok := f.routes[k]; ok {
		return alreadyExists("route %s", r.Destination)
	}
	f.routes[k] = r
	return nil
}

func (f *fakeController) DeleteRoute(r api.RouteEntry) error {
	if err := f.record("DeleteRoute %s %s", api.ScopeName(r.Namespace), r.Destination); err != nil {
		return err
	}
	k := key(r.Namespace, r.Destination)
	if _, ok := f.routes[k]; !ok {
		return notFound("route %s", r.Destination)
	}
	delete(f.routes, k)
	return nil
}

func (f *fakeController) DisableOffloads(namespace, name string) ([]string, error) {
	if err := f.record("DisableOffloads %s %s", api.ScopeName(namespace), name); err != nil {
		return nil, err
	}
	if err := f.hasLink(namespace, name); err != nil {
		return nil, err
	}
	k := key(namespace, name)
	if f.offloaded[k] {
		return nil, nil
	}
	f.offloaded[k] = true
	return []string{"rx-gro", "tx-tcp-segmentation"}, nil
}

func (f *fakeController) SetSysctl(s api.SysctlSetting) error {
	if err := f.record("SetSysctl %s %s=%s", api.ScopeName(s.Namespace), s.Key, s.Value); err != nil {
		return err
	}
	values, ok := f.sysctls[s.Namespace]
	if !ok {
		return notFound("namespace %s", s.Namespace)
	}
	values[s.Key] = s.Value
	return nil
}

func (f *fakeController) GetSysctl(namespace, k string) (string, error) {
	if err := f.record("GetSysctl %s %s", api.ScopeName(namespace), k); err != nil {
		return "", err
	}
	values, ok := f.sysctls[namespace]
	if !ok {
		return "", notFound("namespace %s", namespace)
	}
	v, ok := values[k]
	if !ok {
		return "", notFound("sysctl %s", k)
	}
	return v, nil
}

func (f *fakeController) LoadModule(_ context.Context, name string) error {
	if err := f.record("LoadModule %s", name); err != nil {
		return err
	}
	if !slices.Contains(f.modules, name) {
		f.modules = append(f.modules, name)
	}
	return nil
}

func (f *fakeController) ApplyQdisc(spec api.QdiscSpec) error {
	if err := f.record("ApplyQdisc %s %s %s", api.ScopeName(spec.Namespace), spec.Interface, spec.Root); err != nil {
		return err
	}
	if err := f.hasLink(spec.Namespace, spec.Interface); err != nil {
		return err
	}
	k := key(spec.Namespace, spec.Interface)
	if spec.Root == "" {
		if cur, ok := f.qdiscs[k]; ok && slices.Contains(spec.Replaces, cur.Root) {
			delete(f.qdiscs, k)
		}
		return nil
	}
	f.qdiscs[k] = spec
	return nil
}

func (f *fakeController) QdiscTree(namespace, name string) (api.QdiscTree, error) {
	tree := api.QdiscTree{Interface: name}
	if err := f.record("QdiscTree %s %s", api.ScopeName(namespace), name); err != nil {
		return tree, err
	}
	if err := f.hasLink(namespace, name); err != nil {
		return tree, err
	}
	spec, ok := f.qdiscs[key(namespace, name)]
	if !ok {
		tree.Qdiscs = []api.QdiscRecord{{Kind: "noqueue", Handle: "0:0", Parent: "root"}}
		return tree, nil
	}
	root := api.QdiscRecord{
		Kind:   string(spec.Root),
		Handle: fmt.Sprintf("%x:0", spec.Handle),
		Parent: "root",
	}
	if spec.Netem != nil {
		root.DelayMs = spec.Netem.DelayMs
		root.Limit = spec.Netem.Limit
	}
	tree.Qdiscs = append(tree.Qdiscs, root)
	if spec.HTB != nil {
		classID := fmt.Sprintf("%x:%x", spec.Handle, spec.HTB.ClassMinor)
		tree.Classes = append(tree.Classes, api.ClassRecord{
			Kind:    "htb",
			Handle:  classID,
			Parent:  root.Handle,
			RateBps: spec.HTB.RateBps,
			CeilBps: spec.HTB.RateBps,
		})
		if spec.Child != "" {
			tree.Qdiscs = append(tree.Qdiscs, api.QdiscRecord{
				Kind:   string(spec.Child),
				Handle: fmt.Sprintf("%x:0", spec.ChildHandle),
				Parent: classID,
			})
		}
	}
	return tree, nil
}

func (f *fakeController) RestartNetworking(_ context.Context) error {
	if err := f.record("RestartNetworking"); err != nil {
		return err
	}
	if !f.restartConfigured {
		return notFound("network restart command")
	}
	return nil
}

// fakeState is the comparable part of a fakeController.
type fakeState struct {
	Bridges    map[string][]string
	Namespaces map[string]bool
	Links      map[string]map[string]bool
	Addrs      map[string][]string
	Routes     map[string]api.RouteEntry
	Sysctls    map[string]map[string]string
	Modules    []string
	Qdiscs     map[string]api.QdiscSpec
}

// state returns a deep copy of the model.
func (f *fakeController) state() fakeState {
	st := fakeState{
		Bridges:    map[string][]string{},
		Namespaces: maps.Clone(f.namespaces),
		Links:      map[string]map[string]bool{},
		Addrs:      map[string][]string{},
		Routes:     maps.Clone(f.routes),
		Sysctls:    map[string]map[string]string{},
		Modules:    slices.Clone(f.modules),
		Qdiscs:     maps.Clone(f.qdiscs),
	}
	for k, v := range f.bridges {
		st.Bridges[k] = slices.Clone(v)
	}
	for k, v := range f.links {
		st.Links[k] = maps.Clone(v)
	}
	for k, v := range f.addrs {
		st.Addrs[k] = slices.Clone(v)
	}
	for k, v := range f.sysctls {
		st.Sysctls[k] = maps.Clone(v)
	}
	return st
}

// callsWithPrefix returns the recorded calls starting with prefix.
func (f *fakeController) callsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
