package pkg

import (
	"L4STestbed/api"
	"L4STestbed/pkg/sysctl"
	"L4STestbed/pkg/topology"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func setupFake(t *testing.T, cfg api.ExperimentConfig) *fakeController {
	t.Helper()
	f := newFakeController()
	if err := NewManager(f).Setup(context.Background(), testPlan(t, cfg)); err != nil {
		t.Fatal(err)
	}
	f.calls = nil
	return f
}

func TestInspectDoesNotMutate(t *testing.T) {
	f := setupFake(t, testConfig())
	before := f.state()
	NewVerifier(f).Inspect(topology.ForSide(testSide(t)))
	if diff := cmp.Diff(before, f.state()); diff != "" {
		t.Fatal(diff)
	}
	reads := []string{"GetSysctl ", "QdiscTree ", "NamespaceExists "}
	for _, c := range f.calls {
		if !slices.ContainsFunc(reads, func(prefix string) bool { return strings.HasPrefix(c, prefix) }) {
			t.Fatalf("unexpected call %q", c)
		}
	}
}

func TestInspectReportsLiveState(t *testing.T) {
	f := setupFake(t, testConfig())
	report := NewVerifier(f).Inspect(topology.ForSide(testSide(t)))

	if report.Side != api.SideA || len(report.Scopes) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	host, ns := report.Scopes[0], report.Scopes[1]
	if host.Scope != "host" || ns.Scope != "router-a" || !ns.Present {
		t.Fatalf("unexpected scopes %q %q", host.Scope, ns.Scope)
	}

	wantSysctls := []api.SysctlValue{
		{Key: sysctl.KeyTCPECN, Value: "1"},
		{Key: sysctl.KeyTCPCongestionControl, Value: "cubic"},
		{Key: sysctl.KeyIPForward, Value: "1"},
		{Key: sysctl.KeyTCPNoMetricsSave, Value: "1"},
	}
	if diff := cmp.Diff(wantSysctls, ns.Sysctls); diff != "" {
		t.Fatal(diff)
	}

	tree, ok := ns.Tree("veth-a-in-r")
	if !ok {
		t.Fatal("ingress tree missing")
	}
	wantTree := api.QdiscTree{
		Interface: "veth-a-in-r",
		Qdiscs:    []api.QdiscRecord{{Kind: "netem", Handle: "1:0", Parent: "root", DelayMs: 50, Limit: 300000}},
	}
	if diff := cmp.Diff(wantTree, tree); diff != "" {
		t.Fatal(diff)
	}
	if len(host.Trees) != 5 {
		t.Fatalf("expected five host interfaces, got %d", len(host.Trees))
	}
}

func TestInspectSkipsMissingNamespace(t *testing.T) {
	f := newFakeController()
	report := NewVerifier(f).Inspect(topology.ForSide(testSide(t)))
	if diff := cmp.Diff(api.ScopeReport{Scope: "router-a"}, report.Scopes[1]); diff != "" {
		t.Fatal(diff)
	}
	if calls := f.callsWithPrefix("GetSysctl router-a"); len(calls) != 0 {
		t.Fatalf("namespace was read: %v", calls)
	}
	// interfaces that do not exist are reported, not fatal
	tree, _ := report.Scopes[0].Tree("veth-a-host")
	if tree.Error == "" {
		t.Fatal("expected a read error for the missing host link")
	}
}

func TestInspectRecordsReadErrors(t *testing.T) {
	f := setupFake(t, testConfig())
	f.failOn["GetSysctl host net.ipv4.tcp_ecn"] = errors.New("permission denied")
	p := testPlan(t, testConfig())

	report := NewVerifier(f).Inspect(p)
	if got := report.Scopes[0].Sysctls[0]; got.Error != "permission denied" {
		t.Fatalf("error not recorded: %+v", got)
	}
	want := []api.Mismatch{{Scope: "host", What: sysctl.KeyTCPECN, Expected: "1", Actual: "unreadable"}}
	if diff := cmp.Diff(want, Compare(report, p)); diff != "" {
		t.Fatal(diff)
	}
}

func TestCompareMatchingState(t *testing.T) {
	for _, cc := range []api.CongestionControl{api.CCCubic, api.CCBBR, api.CCPrague} {
		cfg := testConfig()
		cfg.CongestionControl = cc
		cfg.AQMEnabled = true
		f := setupFake(t, cfg)
		p := testPlan(t, cfg)
		if ms := Compare(NewVerifier(f).Inspect(p), p); len(ms) != 0 {
			t.Fatalf("%s: unexpected mismatches %+v", cc, ms)
		}
	}
}

func TestCompareDetectsDifferences(t *testing.T) {
	type testcase struct {
		name   string
		mutate func(cfg *api.ExperimentConfig)
		want   []api.Mismatch
	}

	cases := []testcase{{
		name:   "delay",
		mutate: func(cfg *api.ExperimentConfig) { cfg.DelayMs = 20 },
		want:   []api.Mismatch{{Scope: "router-a", What: "veth-a-in-r delay", Expected: "20ms", Actual: "50ms"}},
	}, {
		name:   "delay expected off",
		mutate: func(cfg *api.ExperimentConfig) { cfg.DelayMs = 0 },
		want:   []api.Mismatch{{Scope: "router-a", What: "veth-a-in-r root qdisc", Expected: "no netem", Actual: "netem"}},
	}, {
		name:   "rate",
		mutate: func(cfg *api.ExperimentConfig) { cfg.Rate = api.Rate{Value: 20, Unit: api.Mbit} },
		want:   []api.Mismatch{{Scope: "router-a", What: "veth-a-out-r class 1:1 rate", Expected: "20000000", Actual: "10000000"}},
	}, {
		name:   "dualpi2",
		mutate: func(cfg *api.ExperimentConfig) { cfg.AQMEnabled = true },
		want:   []api.Mismatch{{Scope: "router-a", What: "veth-a-out-r child of 1:1", Expected: "dualpi2", Actual: "none"}},
	}, {
		name:   "ecn",
		mutate: func(cfg *api.ExperimentConfig) { cfg.ECN = 3 },
		want: []api.Mismatch{
			{Scope: "host", What: sysctl.KeyTCPECN, Expected: "3", Actual: "1"},
			{Scope: "router-a", What: sysctl.KeyTCPECN, Expected: "3", Actual: "1"},
		},
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupFake(t, testConfig())
			cfg := testConfig()
			tc.mutate(&cfg)
			p := testPlan(t, cfg)
			got := Compare(NewVerifier(f).Inspect(p), p)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestCompareMissingNamespace(t *testing.T) {
	f := newFakeController()
	p := testPlan(t, testConfig())
	var nsMismatches []api.Mismatch
	for _, m := range Compare(NewVerifier(f).Inspect(p), p) {
		if m.Scope == "router-a" {
			nsMismatches = append(nsMismatches, m)
		}
	}
	if len(nsMismatches) != 4 {
		t.Fatalf("expected four namespace sysctls to be reported, got %+v", nsMismatches)
	}
	for _, m := range nsMismatches {
		if m.Actual != "scope missing" {
			t.Fatalf("unexpected mismatch %+v", m)
		}
	}
}
