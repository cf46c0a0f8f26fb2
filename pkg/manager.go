package pkg

import (
	"L4STestbed/api"
	"L4STestbed/pkg/topology"
	"context"
	"fmt"
	"slices"

	"github.com/apex/log"
	"go.uber.org/multierr"
)

// Manager applies and removes a topology.Plan through a NetworkController.
// Setup is fail-fast and leaves whatever it already applied in place; Clean
// is best effort and never stops on a failed deletion.
type Manager struct {
	ctl    NetworkController
	logger log.Interface
}

func NewManager(ctl NetworkController) *Manager {
	return &Manager{
		ctl:    ctl,
		logger: log.WithField("component", "manager"),
	}
}

type setupStep struct {
	name string
	run  func(ctx context.Context, p *topology.Plan) error
}

func (m *Manager) setupSteps() []setupStep {
	return []setupStep{
		{"flush uplink addresses", m.flushUplink},
		{"reconcile bridges", m.reconcileBridges},
		{"create bridges and link pairs", m.createBridgesAndPairs},
		{"create router namespace", m.createNamespace},
		{"assign router addresses", m.assignRouterAddrs},
		{"add router route", m.addRouterRoute},
		{"enable forwarding", m.enableForwarding},
		{"apply transport parameters", m.applyTransport},
		{"attach delay emulator", m.attachDelay},
		{"attach rate limiter", m.attachRateLimiter},
		{"connect host", m.connectHost},
		{"disable offloads", m.disableOffloads},
		{"set host link qdisc", m.setHostQdisc},
	}
}

// Setup brings the live system to the state described by p. p must carry an
// ExperimentConfig. The first failing step aborts the sequence and is
// returned as *api.StepError; nothing is rolled back.
func (m *Manager) Setup(ctx context.Context, p *topology.Plan) error {
	if p.Config == nil {
		return fmt.Errorf("setup needs an experiment configuration")
	}
	logger := m.logger.WithField("side", p.Side.ID)
	steps := m.setupSteps()
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return &api.StepError{Step: s.name, Err: err}
		}
		logger.Infof("[%d/%d] %s", i+1, len(steps), s.name)
		if err := s.run(ctx, p); err != nil {
			logger.WithError(err).Errorf("step %q failed; topology is partially applied, run clean to reset", s.name)
			return &api.StepError{Step: s.name, Err: err}
		}
	}
	logger.Info("setup complete")
	return nil
}

// tolerate turns an idempotency conflict into success.
func (m *Manager) tolerate(err error, format string, args ...any) error {
	if api.IsAlreadyExists(err) {
		m.logger.WithField("skipped", true).Infof(format+" already present", args...)
		return nil
	}
	return err
}

func (m *Manager) flushUplink(_ context.Context, p *topology.Plan) error {
	n, err := m.ctl.FlushAddrs(api.HostScope, p.Side.Uplink)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.WithField("dev", p.Side.Uplink).Infof("flushed %d stray addresses", n)
	}
	return nil
}

// reconcileBridges removes ports that do not belong on the testbed bridges.
// Bridges outside the plan are never touched.
func (m *Manager) reconcileBridges(_ context.Context, p *topology.Plan) error {
	existing, err := m.ctl.ListBridges()
	if err != nil {
		return err
	}
	for _, b := range p.Bridges {
		if !slices.Contains(existing, b.Name) {
			continue
		}
		ports, err := m.ctl.BridgePorts(b.Name)
		if err != nil {
			return err
		}
		for _, port := range ports {
			if slices.Contains(b.Ports, port) {
				continue
			}
			m.logger.WithField("bridge", b.Name).Infof("removing stray port %s", port)
			if err := m.ctl.DeleteBridgePort(b.Name, port); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) createBridgesAndPairs(_ context.Context, p *topology.Plan) error {
	for _, b := range p.Bridges {
		if err := m.tolerate(m.ctl.CreateBridge(b.Name), "bridge %s", b.Name); err != nil {
			return err
		}
	}
	for _, pair := range p.RouterPairs {
		if err := m.tolerate(m.ctl.CreateVethPair(pair), "veth pair %s", pair.BridgeEnd); err != nil {
			return err
		}
	}
	lan, wan := p.Bridges[0].Name, p.Bridges[1].Name
	attach := []struct{ bridge, port string }{
		{lan, p.Side.Ingress.BridgeEnd},
		{wan, p.Side.Egress.BridgeEnd},
		{wan, p.Side.Uplink},
	}
	for _, a := range attach {
		if err := m.tolerate(m.ctl.AddBridgePort(a.bridge, a.port), "port %s on %s", a.port, a.bridge); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) createNamespace(_ context.Context, p *topology.Plan) error {
	ns := p.Side.Namespace
	if err := m.tolerate(m.ctl.CreateNamespace(ns), "namespace %s", ns); err != nil {
		return err
	}
	for _, pair := range p.RouterPairs {
		if err := m.tolerate(m.ctl.MoveLink(pair.PeerEnd, ns), "%s in %s", pair.PeerEnd, ns); err != nil {
			return err
		}
	}
	if err := m.ctl.SetLinkUp(ns, "lo"); err != nil {
		return err
	}
	for _, pair := range p.RouterPairs {
		if err := m.ctl.SetLinkUp(ns, pair.PeerEnd); err != nil {
			return err
		}
		if err := m.ctl.SetLinkUp(api.HostScope, pair.BridgeEnd); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) assignRouterAddrs(_ context.Context, p *topology.Plan) error {
	for _, a := range p.NamespaceAddrs {
		if err := m.tolerate(m.ctl.AddAddr(a), "address %s on %s", a.CIDR, a.Interface); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) addRouterRoute(_ context.Context, p *topology.Plan) error {
	r := p.NamespaceRoute
	return m.tolerate(m.ctl.AddRoute(r), "route %s via %s in %s", r.Destination, r.Gateway, r.Namespace)
}

func (m *Manager) enableForwarding(_ context.Context, p *topology.Plan) error {
	for _, s := range p.Forwarding {
		if err := m.setSysctl(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) setSysctl(s api.SysctlSetting) error {
	m.logger.WithFields(log.Fields{"scope": api.ScopeName(s.Namespace), "key": s.Key}).Infof("sysctl %s=%s", s.Key, s.Value)
	return m.ctl.SetSysctl(s)
}

func (m *Manager) applyTransport(ctx context.Context, p *topology.Plan) error {
	for _, mod := range p.Modules {
		if err := m.ctl.LoadModule(ctx, mod); err != nil {
			return err
		}
	}
	for _, s := range p.Transport {
		if err := m.setSysctl(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) attachDelay(_ context.Context, p *topology.Plan) error {
	if p.Ingress.Root == "" {
		m.logger.WithField("dev", p.Ingress.Interface).Info("delay is 0, no delay emulator attached")
	}
	return m.ctl.ApplyQdisc(p.Ingress)
}

func (m *Manager) attachRateLimiter(_ context.Context, p *topology.Plan) error {
	if p.Egress.HTB == nil {
		return fmt.Errorf("plan has no rate limiter for %s", p.Egress.Interface)
	}
	m.logger.WithFields(log.Fields{
		"dev":     p.Egress.Interface,
		"rate":    p.Config.Rate.String(),
		"dualpi2": p.Egress.Child != "",
	}).Info("rate limiter")
	return m.ctl.ApplyQdisc(p.Egress)
}

func (m *Manager) connectHost(_ context.Context, p *topology.Plan) error {
	pair := p.HostLink
	if err := m.tolerate(m.ctl.CreateVethPair(pair), "veth pair %s", pair.BridgeEnd); err != nil {
		return err
	}
	lan := p.Bridges[0].Name
	if err := m.tolerate(m.ctl.AddBridgePort(lan, pair.BridgeEnd), "port %s on %s", pair.BridgeEnd, lan); err != nil {
		return err
	}
	if err := m.ctl.SetLinkUp(api.HostScope, pair.PeerEnd); err != nil {
		return err
	}
	if err := m.tolerate(m.ctl.AddAddr(p.HostAddr), "address %s on %s", p.HostAddr.CIDR, p.HostAddr.Interface); err != nil {
		return err
	}
	r := p.HostRoute
	return m.tolerate(m.ctl.AddRoute(r), "route %s via %s", r.Destination, r.Gateway)
}

func (m *Manager) disableOffloads(_ context.Context, p *topology.Plan) error {
	for _, o := range p.Offload {
		for _, iface := range o.Interfaces {
			changed, err := m.ctl.DisableOffloads(o.Namespace, iface)
			if err != nil {
				return err
			}
			if len(changed) > 0 {
				m.logger.WithFields(log.Fields{"scope": api.ScopeName(o.Namespace), "dev": iface}).Infof("disabled %v", changed)
			}
		}
	}
	return nil
}

func (m *Manager) setHostQdisc(_ context.Context, p *topology.Plan) error {
	return m.ctl.ApplyQdisc(p.HostQdisc)
}

// CleanOptions tune Clean.
type CleanOptions struct {
	// PurgeBridges deletes every OVS bridge on the host, not only the
	// testbed bridges of this side.
	PurgeBridges bool
}

// CleanReport lists what Clean did. Err aggregates the best effort
// failures; it is informational.
type CleanReport struct {
	Removed []string
	Skipped []string
	Err     error
}

func (r *CleanReport) record(logger log.Interface, what string, err error) {
	switch {
	case err == nil:
		r.Removed = append(r.Removed, what)
		logger.Infof("%s: done", what)
	case api.IsNotFound(err):
		r.Skipped = append(r.Skipped, what)
		logger.WithField("skipped", true).Infof("%s: not present", what)
	default:
		r.Err = multierr.Append(r.Err, fmt.Errorf("%s: %w", what, err))
		logger.WithError(err).Warnf("%s: failed, continuing", what)
	}
}

// Clean removes everything Setup can create for the side of p, without
// knowing which configuration was applied. Absent objects are skipped.
func (m *Manager) Clean(ctx context.Context, p *topology.Plan, opts CleanOptions) *CleanReport {
	logger := m.logger.WithField("side", p.Side.ID)
	report := &CleanReport{}

	bridges := make([]string, 0, len(p.Bridges))
	for _, b := range p.Bridges {
		bridges = append(bridges, b.Name)
	}
	if opts.PurgeBridges {
		all, err := m.ctl.ListBridges()
		if err != nil {
			report.record(logger, "list bridges", err)
		}
		for _, b := range all {
			if !slices.Contains(bridges, b) {
				bridges = append(bridges, b)
			}
		}
	}
	for _, b := range bridges {
		report.record(logger, "delete bridge "+b, m.ctl.DeleteBridge(b))
	}

	report.record(logger, "delete host link "+p.HostLink.PeerEnd, m.ctl.DeleteLink(api.HostScope, p.HostLink.PeerEnd))

	report.record(logger, "delete namespace "+p.Side.Namespace, m.ctl.DeleteNamespace(p.Side.Namespace))

	// pairs that were created but never moved survive the namespace
	for _, pair := range p.RouterPairs {
		exists, err := m.ctl.LinkExists(api.HostScope, pair.BridgeEnd)
		if err != nil {
			report.record(logger, "look up "+pair.BridgeEnd, err)
			continue
		}
		if exists {
			report.record(logger, "delete leftover link "+pair.BridgeEnd, m.ctl.DeleteLink(api.HostScope, pair.BridgeEnd))
		}
	}

	uplink := p.Side.Uplink
	if err := m.ctl.SetLinkDown(api.HostScope, uplink); err != nil {
		report.record(logger, "reset uplink "+uplink, err)
	} else {
		report.record(logger, "reset uplink "+uplink, m.ctl.SetLinkUp(api.HostScope, uplink))
	}

	r := p.HostRoute
	report.record(logger, fmt.Sprintf("delete route %s via %s", r.Destination, r.Gateway), m.ctl.DeleteRoute(r))

	report.record(logger, "restart host networking", m.ctl.RestartNetworking(ctx))

	if report.Err != nil {
		logger.Warnf("clean finished with %d failures", len(multierr.Errors(report.Err)))
	} else {
		logger.Info("clean complete")
	}
	return report
}
