package node

import (
	"L4STestbed/api"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/apex/log"
	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netns"
)

// DefaultNetnsDir is where iproute2 and netns.NewNamed bind mount named
// namespaces.
const DefaultNetnsDir = "/var/run/netns"

// NamespaceManager manages the router namespace of one side. Its methods
// switch the calling thread into other namespaces and are not reentrant.
type NamespaceManager struct {
	dir    string
	logger log.Interface
}

func NewNamespaceManager() *NamespaceManager {
	return &NamespaceManager{
		dir:    DefaultNetnsDir,
		logger: log.WithField("component", "netns"),
	}
}

// Path returns the bind mount path of a named namespace.
func (nm *NamespaceManager) Path(name string) string {
	return filepath.Join(nm.dir, name)
}

// Exists reports whether the named namespace is mounted.
func (nm *NamespaceManager) Exists(name string) (bool, error) {
	_, err := os.Stat(nm.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat namespace %s: %v", name, err)
}

// Create adds the named namespace. It returns api.ErrAlreadyExists when the
// namespace is already mounted.
func (nm *NamespaceManager) Create(name string) error {
	exists, err := nm.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("namespace %s: %w", name, api.ErrAlreadyExists)
	}

	// netns.NewNamed switches the current thread into the new namespace
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get current namespace: %v", err)
	}
	defer origin.Close()

	created, err := netns.NewNamed(name)
	if err != nil {
		_ = netns.Set(origin)
		return fmt.Errorf("failed to create namespace %s: %v", name, err)
	}
	created.Close()

	if err := netns.Set(origin); err != nil {
		return fmt.Errorf("failed to switch back from namespace %s: %v", name, err)
	}
	nm.logger.WithField("netns", name).Info("namespace created")
	return nil
}

// Delete removes the named namespace together with every interface and
// qdisc it owns. It returns api.ErrNotFound when it does not exist.
func (nm *NamespaceManager) Delete(name string) error {
	exists, err := nm.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("namespace %s: %w", name, api.ErrNotFound)
	}
	if err := netns.DeleteNamed(name); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %v", name, err)
	}
	return nil
}

// Open returns a handle on the named namespace. Callers close it.
func (nm *NamespaceManager) Open(name string) (ns.NetNS, error) {
	netNs, err := ns.GetNS(nm.Path(name))
	if err != nil {
		var notExist ns.NSPathNotExistErr
		if errors.As(err, &notExist) {
			return nil, fmt.Errorf("namespace %s: %w", name, api.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get namespace %s: %v", name, err)
	}
	return netNs, nil
}

// Do runs fn inside the named namespace. The host scope runs fn in place.
func (nm *NamespaceManager) Do(name string, fn func() error) error {
	if name == api.HostScope {
		return fn()
	}
	netNs, err := nm.Open(name)
	if err != nil {
		return err
	}
	defer netNs.Close()

	return netNs.Do(func(_ ns.NetNS) error {
		return fn()
	})
}
