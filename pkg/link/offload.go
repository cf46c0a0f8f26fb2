package link

import (
	"fmt"
	"sort"

	"github.com/safchain/ethtool"
)

// SegmentationOffloads are the features that coalesce packets before the
// qdisc sees them: TSO, GRO, GSO and LRO.
var SegmentationOffloads = []string{
	"tx-tcp-segmentation",
	"rx-gro",
	"tx-generic-segmentation",
	"rx-lro",
}

// DisableOffloads turns off every SegmentationOffloads feature of name that
// is currently on. Features the driver does not expose are skipped. It
// returns the features that were changed.
func (lm *LinkManager) DisableOffloads(name string) ([]string, error) {
	e, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("failed to open ethtool socket: %v", err)
	}
	defer e.Close()

	features, err := e.Features(name)
	if err != nil {
		return nil, classify(err, "failed to read features of %s", name)
	}

	change := make(map[string]bool)
	for _, f := range SegmentationOffloads {
		if on, ok := features[f]; ok && on {
			change[f] = false
		}
	}
	if len(change) == 0 {
		return nil, nil
	}
	if err := e.Change(name, change); err != nil {
		return nil, fmt.Errorf("failed to disable offloads on %s: %v", name, err)
	}

	changed := make([]string, 0, len(change))
	for f := range change {
		changed = append(changed, f)
	}
	sort.Strings(changed)
	return changed, nil
}
