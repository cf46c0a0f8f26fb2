package pkg

import (
	"L4STestbed/api"
	"context"
)

// NetworkController is everything the orchestrators may do to the live
// system. Namespace arguments take api.HostScope for the default namespace.
//
// Create and add operations return an error wrapping api.ErrAlreadyExists
// when the object is already there; read and delete operations return one
// wrapping api.ErrNotFound when it is absent.
//
// Implementations act on process wide kernel state and are not reentrant.
type NetworkController interface {
	ListBridges() ([]string, error)
	CreateBridge(name string) error
	DeleteBridge(name string) error
	BridgePorts(bridge string) ([]string, error)
	AddBridgePort(bridge, port string) error
	DeleteBridgePort(bridge, port string) error

	NamespaceExists(name string) (bool, error)
	CreateNamespace(name string) error
	DeleteNamespace(name string) error

	LinkExists(namespace, name string) (bool, error)
	CreateVethPair(pair api.VethPair) error
	MoveLink(name, namespace string) error
	SetLinkUp(namespace, name string) error
	SetLinkDown(namespace, name string) error
	DeleteLink(namespace, name string) error
	FlushAddrs(namespace, name string) (int, error)
	AddAddr(a api.AddressAssignment) error
	AddRoute(r api.RouteEntry) error
	DeleteRoute(r api.RouteEntry) error
	DisableOffloads(namespace, name string) ([]string, error)

	SetSysctl(s api.SysctlSetting) error
	GetSysctl(namespace, key string) (string, error)
	LoadModule(ctx context.Context, name string) error

	ApplyQdisc(spec api.QdiscSpec) error
	QdiscTree(namespace, name string) (api.QdiscTree, error)

	// RestartNetworking restarts the host network service. It returns
	// api.ErrNotFound when no restart command is configured.
	RestartNetworking(ctx context.Context) error
}
