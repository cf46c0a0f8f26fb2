package pkg

import (
	"L4STestbed/api"
	"L4STestbed/pkg/lock"
	"L4STestbed/pkg/topology"
	"L4STestbed/pkg/util"
	"context"
	"errors"

	"github.com/apex/log"
)

// Testbed is the entry point used by the CLI. It validates input, resolves
// the plan of its side and runs the orchestrators under the side lock.
type Testbed struct {
	side    api.Side
	lockDir string

	m *Manager
	v *Verifier
}

func NewTestbed(ctl NetworkController, side api.Side, lockDir string) *Testbed {
	return &Testbed{
		side:    side,
		lockDir: lockDir,
		m:       NewManager(ctl),
		v:       NewVerifier(ctl),
	}
}

// Side returns the side this testbed manages.
func (t *Testbed) Side() api.Side {
	return t.side
}

// PlanFor validates raw and builds the full plan. Nothing is mutated.
func (t *Testbed) PlanFor(raw api.RawParams) (*topology.Plan, error) {
	cfg, err := util.ParseExperimentConfig(raw)
	if err != nil {
		return nil, err
	}
	p := topology.Build(t.side, cfg)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Testbed) withLock(fn func() error) error {
	l, err := lock.Acquire(lock.Path(t.lockDir, string(t.side.ID)))
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.WithError(err).Warn("failed to release lock")
		}
	}()
	return fn()
}

// Setup validates raw completely before touching anything, then applies
// the plan.
func (t *Testbed) Setup(ctx context.Context, raw api.RawParams) error {
	p, err := t.PlanFor(raw)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"side":    t.side.ID,
		"delay":   p.Config.DelayMs,
		"ecn":     p.Config.ECN,
		"cc":      p.Config.CongestionControl,
		"dualpi2": p.Config.AQMEnabled,
		"rate":    p.Config.Rate.String(),
	}).Info("starting setup")
	return t.withLock(func() error {
		return t.m.Setup(ctx, p)
	})
}

// Clean tears the side down. Only failing to take the lock is an error;
// sub step failures are reported in the CleanReport.
func (t *Testbed) Clean(ctx context.Context, opts CleanOptions) (*CleanReport, error) {
	p := topology.ForSide(t.side)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var report *CleanReport
	err := t.withLock(func() error {
		report = t.m.Clean(ctx, p, opts)
		return nil
	})
	return report, err
}

// Verify reads back the live state of the side. When expect is set the
// report is also compared against the plan for those parameters.
func (t *Testbed) Verify(expect *api.RawParams) (api.Report, []api.Mismatch, error) {
	var want *topology.Plan
	if expect != nil {
		p, err := t.PlanFor(*expect)
		if err != nil {
			return api.Report{}, nil, err
		}
		want = p
	}
	report := t.v.Inspect(topology.ForSide(t.side))
	if want == nil {
		return report, nil, nil
	}
	return report, Compare(report, want), nil
}

// ErrMismatch is returned by callers when Verify found differences.
var ErrMismatch = errors.New("live state differs from the expected configuration")
