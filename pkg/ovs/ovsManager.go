package ovs

import (
	"L4STestbed/api"
	"errors"
	"fmt"
	"slices"

	"github.com/apex/log"
	"github.com/digitalocean/go-openvswitch/ovs"
	"github.com/vishvananda/netlink"
)

// OvsManager drives ovs-vsctl for the testbed bridges.
type OvsManager struct {
	oClient *ovs.Client
	logger  log.Interface
}

func NewOvsManager() *OvsManager {
	return &OvsManager{
		oClient: ovs.New(),
		logger:  log.WithField("component", "ovs"),
	}
}

// ListBridges returns every bridge known to the OVS database, including
// bridges the testbed does not own.
func (om *OvsManager) ListBridges() ([]string, error) {
	bridges, err := om.oClient.VSwitch.ListBridges()
	if err != nil {
		return nil, fmt.Errorf("failed to list OVS bridges: %v", err)
	}
	return bridges, nil
}

func (om *OvsManager) hasBridge(bridge string) (bool, error) {
	bridges, err := om.ListBridges()
	if err != nil {
		return false, err
	}
	return slices.Contains(bridges, bridge), nil
}

// CreateBridge adds bridge, returning api.ErrAlreadyExists if it is there.
func (om *OvsManager) CreateBridge(bridge string) error {
	exists, err := om.hasBridge(bridge)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("bridge %s: %w", bridge, api.ErrAlreadyExists)
	}
	if err := om.oClient.VSwitch.AddBridge(bridge); err != nil {
		return fmt.Errorf("failed to add OVS bridge %s: %v", bridge, err)
	}
	return nil
}

// DeleteBridge removes bridge, returning api.ErrNotFound if it is absent.
func (om *OvsManager) DeleteBridge(bridge string) error {
	exists, err := om.hasBridge(bridge)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bridge %s: %w", bridge, api.ErrNotFound)
	}
	if err := om.oClient.VSwitch.DeleteBridge(bridge); err != nil {
		return fmt.Errorf("failed to delete OVS bridge %s: %v", bridge, err)
	}
	return nil
}

// ListPorts returns the ports currently plugged into bridge.
func (om *OvsManager) ListPorts(bridge string) ([]string, error) {
	ports, err := om.oClient.VSwitch.ListPorts(bridge)
	if err != nil {
		return nil, fmt.Errorf("failed to list ports of OVS bridge %s: %v", bridge, err)
	}
	return ports, nil
}

// AddPort plugs an existing host interface into bridge and brings it up.
func (om *OvsManager) AddPort(bridge, port string) error {
	link, err := netlink.LinkByName(port)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("interface %s: %w", port, api.ErrNotFound)
		}
		return fmt.Errorf("failed to find interface %s: %v", port, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up interface %s: %v", port, err)
	}

	ports, err := om.ListPorts(bridge)
	if err != nil {
		return err
	}
	if slices.Contains(ports, port) {
		return fmt.Errorf("port %s on %s: %w", port, bridge, api.ErrAlreadyExists)
	}

	if err := om.oClient.VSwitch.AddPort(bridge, port); err != nil {
		return fmt.Errorf("failed to add %s to OVS bridge %s: %v", port, bridge, err)
	}
	return nil
}

// DeletePort unplugs port from bridge.
func (om *OvsManager) DeletePort(bridge, port string) error {
	if err := om.oClient.VSwitch.DeletePort(bridge, port); err != nil {
		return fmt.Errorf("failed to remove %s from OVS bridge %s: %v", port, bridge, err)
	}
	return nil
}
