// Package sysctl reads and writes the kernel parameters the testbed tunes,
// and loads the kernel modules those parameters depend on. All calls act on
// the network namespace of the calling thread.
package sysctl

import (
	"L4STestbed/pkg/shellx"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/containernetworking/plugins/pkg/utils/sysctl"
)

const (
	KeyTCPECN               = "net.ipv4.tcp_ecn"
	KeyTCPCongestionControl = "net.ipv4.tcp_congestion_control"
	KeyIPForward            = "net.ipv4.ip_forward"
	KeyTCPNoMetricsSave     = "net.ipv4.tcp_no_metrics_save"
	KeyDefaultQdisc         = "net.core.default_qdisc"
)

// VerifiedKeys are the keys the verifier reports for every stack.
var VerifiedKeys = []string{
	KeyTCPECN,
	KeyTCPCongestionControl,
	KeyIPForward,
	KeyTCPNoMetricsSave,
}

// Get returns the current value of key.
func Get(key string) (string, error) {
	v, err := sysctl.Sysctl(key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v", key, err)
	}
	return strings.TrimSpace(v), nil
}

// Set writes value to key and reads it back.
func Set(key, value string) error {
	got, err := sysctl.Sysctl(key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s=%s: %v", key, value, err)
	}
	if got = strings.TrimSpace(got); got != value {
		return fmt.Errorf("%s reads back %q after writing %q", key, got, value)
	}
	return nil
}

// ModuleLoader loads kernel modules on demand.
type ModuleLoader struct {
	Runner *shellx.Runner
	// SysModuleDir is /sys/module unless overridden in tests.
	SysModuleDir string
	logger       log.Interface
}

func NewModuleLoader(r *shellx.Runner) *ModuleLoader {
	return &ModuleLoader{
		Runner:       r,
		SysModuleDir: "/sys/module",
		logger:       log.WithField("component", "sysctl"),
	}
}

// Loaded reports whether name shows up in SysModuleDir.
func (m *ModuleLoader) Loaded(name string) bool {
	_, err := os.Stat(filepath.Join(m.SysModuleDir, name))
	return err == nil
}

// Load runs modprobe for name unless the module is already present.
func (m *ModuleLoader) Load(ctx context.Context, name string) error {
	if m.Loaded(name) {
		m.logger.WithField("module", name).Info("kernel module already loaded")
		return nil
	}
	argv, err := shellx.NewArgv("modprobe", name)
	if err != nil {
		return fmt.Errorf("failed to find modprobe: %v", err)
	}
	if err := m.Runner.Run(ctx, argv); err != nil {
		return fmt.Errorf("failed to load kernel module %s: %w", name, err)
	}
	return nil
}
