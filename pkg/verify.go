package pkg

import (
	"L4STestbed/api"
	"L4STestbed/pkg/sysctl"
	"L4STestbed/pkg/topology"
	"fmt"
	"strconv"

	"github.com/apex/log"
)

// Verifier reads back sysctl values and qdisc trees. It never mutates.
type Verifier struct {
	ctl    NetworkController
	logger log.Interface
}

func NewVerifier(ctl NetworkController) *Verifier {
	return &Verifier{
		ctl:    ctl,
		logger: log.WithField("component", "verify"),
	}
}

// Inspect reports the host stack and, when it exists, the router namespace
// of p's side. Read failures are recorded in the report, not returned.
func (v *Verifier) Inspect(p *topology.Plan) api.Report {
	side := p.Side
	report := api.Report{Side: side.ID}

	host := v.scope(api.HostScope, []string{
		side.HostLink.PeerEnd,
		side.HostLink.BridgeEnd,
		side.Ingress.BridgeEnd,
		side.Egress.BridgeEnd,
		side.Uplink,
	})
	report.Scopes = append(report.Scopes, host)

	exists, err := v.ctl.NamespaceExists(side.Namespace)
	if err != nil {
		v.logger.WithError(err).Warnf("cannot tell whether %s exists", side.Namespace)
	}
	if !exists {
		v.logger.WithField("skipped", true).Infof("namespace %s not present", side.Namespace)
		report.Scopes = append(report.Scopes, api.ScopeReport{Scope: side.Namespace})
		return report
	}
	report.Scopes = append(report.Scopes, v.scope(side.Namespace, []string{
		side.Ingress.PeerEnd,
		side.Egress.PeerEnd,
	}))
	return report
}

func (v *Verifier) scope(namespace string, ifaces []string) api.ScopeReport {
	s := api.ScopeReport{Scope: api.ScopeName(namespace), Present: true}
	for _, key := range sysctl.VerifiedKeys {
		val, err := v.ctl.GetSysctl(namespace, key)
		sv := api.SysctlValue{Key: key, Value: val}
		if err != nil {
			sv.Error = err.Error()
		}
		s.Sysctls = append(s.Sysctls, sv)
	}
	for _, iface := range ifaces {
		tree, err := v.ctl.QdiscTree(namespace, iface)
		tree.Interface = iface
		if err != nil {
			tree.Error = err.Error()
		}
		s.Trees = append(s.Trees, tree)
	}
	return s
}

// Compare lists every way report differs from what p asks for. It checks
// the transport sysctls of both stacks and the three managed qdisc trees.
func Compare(report api.Report, p *topology.Plan) []api.Mismatch {
	var out []api.Mismatch
	add := func(scope, what, expected, actual string) {
		out = append(out, api.Mismatch{Scope: scope, What: what, Expected: expected, Actual: actual})
	}

	scopes := make(map[string]api.ScopeReport)
	for _, s := range report.Scopes {
		scopes[s.Scope] = s
	}

	for _, want := range append(append([]api.SysctlSetting{}, p.Forwarding...), p.Transport...) {
		name := api.ScopeName(want.Namespace)
		s, ok := scopes[name]
		if !ok || !s.Present {
			add(name, want.Key, want.Value, "scope missing")
			continue
		}
		if want.Key == sysctl.KeyDefaultQdisc {
			continue // not part of the report
		}
		got, ok := s.Sysctl(want.Key)
		if !ok {
			add(name, want.Key, want.Value, "unreadable")
		} else if got != want.Value {
			add(name, want.Key, want.Value, got)
		}
	}

	for _, spec := range p.QdiscSpecs() {
		name := api.ScopeName(spec.Namespace)
		s, ok := scopes[name]
		if !ok || !s.Present {
			continue // already reported above
		}
		tree, ok := s.Tree(spec.Interface)
		if !ok || tree.Error != "" {
			add(name, spec.Interface, "readable qdisc tree", tree.Error)
			continue
		}
		out = append(out, compareTree(name, spec, tree)...)
	}
	return out
}

func compareTree(scope string, spec api.QdiscSpec, tree api.QdiscTree) []api.Mismatch {
	var out []api.Mismatch
	add := func(what, expected, actual string) {
		out = append(out, api.Mismatch{Scope: scope, What: spec.Interface + " " + what, Expected: expected, Actual: actual})
	}

	var root *api.QdiscRecord
	for i := range tree.Qdiscs {
		if tree.Qdiscs[i].Parent == "root" {
			root = &tree.Qdiscs[i]
		}
	}
	rootKind := "none"
	if root != nil {
		rootKind = root.Kind
	}

	if spec.Root == "" {
		for _, k := range spec.Replaces {
			if rootKind == string(k) {
				add("root qdisc", "no "+string(k), rootKind)
			}
		}
		return out
	}
	if rootKind != string(spec.Root) {
		add("root qdisc", string(spec.Root), rootKind)
		return out
	}

	switch spec.Root {
	case api.QdiscNetem:
		if spec.Netem != nil && root.DelayMs != spec.Netem.DelayMs {
			add("delay", fmt.Sprintf("%dms", spec.Netem.DelayMs), fmt.Sprintf("%dms", root.DelayMs))
		}
	case api.QdiscHTB:
		if spec.HTB == nil {
			break
		}
		classID := fmt.Sprintf("%x:%x", spec.Handle, spec.HTB.ClassMinor)
		var class *api.ClassRecord
		for i := range tree.Classes {
			if tree.Classes[i].Handle == classID {
				class = &tree.Classes[i]
			}
		}
		if class == nil {
			add("class "+classID, "present", "missing")
			break
		}
		if class.RateBps != spec.HTB.RateBps {
			add("class "+classID+" rate", strconv.FormatUint(spec.HTB.RateBps, 10), strconv.FormatUint(class.RateBps, 10))
		}
		child := "none"
		for _, q := range tree.Qdiscs {
			if q.Parent == classID {
				child = q.Kind
			}
		}
		want := "none"
		if spec.Child != "" {
			want = string(spec.Child)
		}
		if child != want {
			add("child of "+classID, want, child)
		}
	}
	return out
}
