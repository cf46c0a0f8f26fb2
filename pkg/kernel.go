package pkg

import (
	"L4STestbed/api"
	"L4STestbed/pkg/link"
	"L4STestbed/pkg/node"
	"L4STestbed/pkg/ovs"
	"L4STestbed/pkg/shellx"
	"L4STestbed/pkg/sysctl"
	"context"
	"fmt"
)

// KernelController implements NetworkController on top of netlink, OVS,
// /proc/sys and a couple of external commands.
type KernelController struct {
	om *ovs.OvsManager
	nm *node.NamespaceManager
	lm *link.LinkManager
	ml *sysctl.ModuleLoader

	runner     *shellx.Runner
	restartCmd string
}

// NewKernelController wires the managers together. restartCmd is the
// command line used by RestartNetworking; empty disables it.
func NewKernelController(runner *shellx.Runner, restartCmd string) *KernelController {
	nm := node.NewNamespaceManager()
	return &KernelController{
		om:         ovs.NewOvsManager(),
		nm:         nm,
		lm:         link.NewLinkManager(nm),
		ml:         sysctl.NewModuleLoader(runner),
		runner:     runner,
		restartCmd: restartCmd,
	}
}

var _ NetworkController = (*KernelController)(nil)

func (k *KernelController) ListBridges() ([]string, error) {
	return k.om.ListBridges()
}

func (k *KernelController) CreateBridge(name string) error {
	return k.om.CreateBridge(name)
}

func (k *KernelController) DeleteBridge(name string) error {
	return k.om.DeleteBridge(name)
}

func (k *KernelController) BridgePorts(bridge string) ([]string, error) {
	return k.om.ListPorts(bridge)
}

func (k *KernelController) AddBridgePort(bridge, port string) error {
	return k.om.AddPort(bridge, port)
}

func (k *KernelController) DeleteBridgePort(bridge, port string) error {
	return k.om.DeletePort(bridge, port)
}

func (k *KernelController) NamespaceExists(name string) (bool, error) {
	return k.nm.Exists(name)
}

func (k *KernelController) CreateNamespace(name string) error {
	return k.nm.Create(name)
}

func (k *KernelController) DeleteNamespace(name string) error {
	return k.nm.Delete(name)
}

func (k *KernelController) LinkExists(namespace, name string) (bool, error) {
	var exists bool
	err := k.nm.Do(namespace, func() error {
		var err error
		exists, err = k.lm.Exists(name)
		return err
	})
	return exists, err
}

func (k *KernelController) CreateVethPair(pair api.VethPair) error {
	return k.lm.CreateVethPair(pair)
}

func (k *KernelController) MoveLink(name, namespace string) error {
	return k.lm.MoveToNamespace(name, namespace)
}

func (k *KernelController) SetLinkUp(namespace, name string) error {
	return k.nm.Do(namespace, func() error { return k.lm.SetUp(name) })
}

func (k *KernelController) SetLinkDown(namespace, name string) error {
	return k.nm.Do(namespace, func() error { return k.lm.SetDown(name) })
}

func (k *KernelController) DeleteLink(namespace, name string) error {
	return k.nm.Do(namespace, func() error { return k.lm.Delete(name) })
}

func (k *KernelController) FlushAddrs(namespace, name string) (int, error) {
	var n int
	err := k.nm.Do(namespace, func() error {
		var err error
		n, err = k.lm.FlushAddrs(name)
		return err
	})
	return n, err
}

func (k *KernelController) AddAddr(a api.AddressAssignment) error {
	return k.nm.Do(a.Namespace, func() error { return k.lm.AddAddr(a.Interface, a.CIDR) })
}

func (k *KernelController) AddRoute(r api.RouteEntry) error {
	return k.nm.Do(r.Namespace, func() error { return k.lm.AddRoute(r) })
}

func (k *KernelController) DeleteRoute(r api.RouteEntry) error {
	return k.nm.Do(r.Namespace, func() error { return k.lm.DelRoute(r) })
}

func (k *KernelController) DisableOffloads(namespace, name string) ([]string, error) {
	var changed []string
	err := k.nm.Do(namespace, func() error {
		var err error
		changed, err = k.lm.DisableOffloads(name)
		return err
	})
	return changed, err
}

func (k *KernelController) SetSysctl(s api.SysctlSetting) error {
	return k.nm.Do(s.Namespace, func() error { return sysctl.Set(s.Key, s.Value) })
}

func (k *KernelController) GetSysctl(namespace, key string) (string, error) {
	var v string
	err := k.nm.Do(namespace, func() error {
		var err error
		v, err = sysctl.Get(key)
		return err
	})
	return v, err
}

func (k *KernelController) LoadModule(ctx context.Context, name string) error {
	return k.ml.Load(ctx, name)
}

func (k *KernelController) ApplyQdisc(spec api.QdiscSpec) error {
	return k.nm.Do(spec.Namespace, func() error { return k.lm.ApplyQdisc(spec) })
}

func (k *KernelController) QdiscTree(namespace, name string) (api.QdiscTree, error) {
	tree := api.QdiscTree{Interface: name}
	err := k.nm.Do(namespace, func() error {
		var err error
		tree, err = k.lm.ReadTree(name)
		return err
	})
	return tree, err
}

func (k *KernelController) RestartNetworking(ctx context.Context) error {
	if k.restartCmd == "" {
		return fmt.Errorf("network restart command: %w", api.ErrNotFound)
	}
	return k.runner.RunCommandLine(ctx, k.restartCmd)
}
