package link

import (
	"L4STestbed/api"
	"fmt"
	"math"
	"slices"

	"github.com/vishvananda/netlink"
)

// ApplyQdisc brings the qdisc tree of spec.Interface in line with spec:
//
//	netem: tc qdisc replace dev X root handle 1: netem delay Dms limit L
//	htb:   tc qdisc replace dev X root handle 1: htb default 1
//	       tc class replace dev X parent 1: classid 1:1 htb rate R burst B
//	       tc qdisc replace dev X parent 1:1 handle 2: dualpi2
//	fq:    tc qdisc replace dev X root fq
//
// A root qdisc of a kind listed in spec.Replaces is deleted when spec no
// longer asks for it.
func (lm *LinkManager) ApplyQdisc(spec api.QdiscSpec) error {
	link, err := byName(spec.Interface)
	if err != nil {
		return err
	}
	index := link.Attrs().Index

	qdiscs, err := netlink.QdiscList(link)
	if err != nil {
		return classify(err, "failed to list qdiscs of %s", spec.Interface)
	}
	root := findRoot(qdiscs)

	if root != nil && root.Type() != string(spec.Root) && slices.Contains(spec.Replaces, api.QdiscKind(root.Type())) {
		if err := netlink.QdiscDel(root); err != nil {
			return classify(err, "failed to delete %s root qdisc of %s", root.Type(), spec.Interface)
		}
		lm.logger.WithField("dev", spec.Interface).Infof("removed stale %s root qdisc", root.Type())
	}

	switch spec.Root {
	case "":
		return nil
	case api.QdiscNetem:
		return lm.applyNetem(spec, index)
	case api.QdiscHTB:
		return lm.applyHtb(spec, index, qdiscs)
	case api.QdiscFQ:
		fq := netlink.NewFq(netlink.QdiscAttrs{
			LinkIndex: index,
			Parent:    netlink.HANDLE_ROOT,
		})
		if err := netlink.QdiscReplace(fq); err != nil {
			return classify(err, "failed to set fq root qdisc on %s", spec.Interface)
		}
		return nil
	}
	return fmt.Errorf("unsupported root qdisc %q on %s", spec.Root, spec.Interface)
}

func findRoot(qdiscs []netlink.Qdisc) netlink.Qdisc {
	for _, q := range qdiscs {
		if q.Attrs().Parent == netlink.HANDLE_ROOT {
			return q
		}
	}
	return nil
}

func (lm *LinkManager) applyNetem(spec api.QdiscSpec, index int) error {
	if spec.Netem == nil {
		return fmt.Errorf("netem qdisc on %s has no parameters", spec.Interface)
	}
	latency, err := netemLatency(spec.Netem.DelayMs, netlink.TickInUsec())
	if err != nil {
		return fmt.Errorf("netem qdisc on %s: %v", spec.Interface, err)
	}
	netem := netlink.NewNetem(netlink.QdiscAttrs{
		LinkIndex: index,
		Parent:    netlink.HANDLE_ROOT,
		Handle:    netlink.MakeHandle(spec.Handle, 0),
	}, netlink.NetemQdiscAttrs{
		Latency: latency,
		Limit:   spec.Netem.Limit,
	})
	if err := netlink.QdiscReplace(netem); err != nil {
		return classify(err, "failed to set netem qdisc on %s", spec.Interface)
	}
	return nil
}

// netemLatency converts delayMs to the microseconds netlink.NewNetem takes.
// It fails when the value does not fit the 32-bit tick field netlink
// converts it to.
func netemLatency(delayMs uint32, tickInUsec float64) (uint32, error) {
	us := uint64(delayMs) * 1000
	if us > math.MaxUint32 || float64(us)*tickInUsec > math.MaxUint32 {
		return 0, fmt.Errorf("delay %dms exceeds the netem tick range", delayMs)
	}
	return uint32(us), nil
}

func (lm *LinkManager) applyHtb(spec api.QdiscSpec, index int, existing []netlink.Qdisc) error {
	if spec.HTB == nil {
		return fmt.Errorf("htb qdisc on %s has no parameters", spec.Interface)
	}
	rootHandle := netlink.MakeHandle(spec.Handle, 0)
	classID := netlink.MakeHandle(spec.Handle, spec.HTB.ClassMinor)

	qdisc := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: index,
		Handle:    rootHandle,
		Parent:    netlink.HANDLE_ROOT,
	})
	qdisc.Defcls = uint32(spec.HTB.DefaultClass)
	if err := netlink.QdiscReplace(qdisc); err != nil {
		return classify(err, "failed to set htb root qdisc on %s", spec.Interface)
	}

	class := netlink.NewHtbClass(
		netlink.ClassAttrs{
			LinkIndex: index,
			Handle:    classID,
			Parent:    rootHandle,
		},
		netlink.HtbClassAttrs{
			Rate:   spec.HTB.RateBps,
			Ceil:   spec.HTB.RateBps,
			Buffer: spec.HTB.BurstBytes,
			Prio:   0,
		},
	)
	if err := netlink.ClassReplace(class); err != nil {
		return classify(err, "failed to set htb class %s on %s", netlink.HandleStr(classID), spec.Interface)
	}

	if spec.Child == "" {
		// drop an AQM left under the class by an earlier run
		for _, q := range existing {
			if q.Attrs().Parent == classID {
				if err := netlink.QdiscDel(q); err != nil {
					return classify(err, "failed to delete %s under %s on %s", q.Type(), netlink.HandleStr(classID), spec.Interface)
				}
			}
		}
		return nil
	}

	child := &netlink.GenericQdisc{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(spec.ChildHandle, 0),
			Parent:    classID,
		},
		QdiscType: string(spec.Child),
	}
	if err := netlink.QdiscReplace(child); err != nil {
		return classify(err, "failed to attach %s under %s on %s", spec.Child, netlink.HandleStr(classID), spec.Interface)
	}
	return nil
}

// ReadTree returns the qdiscs and classes attached to name.
func (lm *LinkManager) ReadTree(name string) (api.QdiscTree, error) {
	tree := api.QdiscTree{Interface: name}
	link, err := byName(name)
	if err != nil {
		return tree, err
	}
	qdiscs, err := netlink.QdiscList(link)
	if err != nil {
		return tree, classify(err, "failed to list qdiscs of %s", name)
	}
	for _, q := range qdiscs {
		tree.Qdiscs = append(tree.Qdiscs, qdiscRecord(q))
		if q.Type() != string(api.QdiscHTB) {
			continue
		}
		classes, err := netlink.ClassList(link, q.Attrs().Handle)
		if err != nil {
			return tree, classify(err, "failed to list classes of %s", name)
		}
		for _, c := range classes {
			tree.Classes = append(tree.Classes, classRecord(c))
		}
	}
	return tree, nil
}

func parentStr(parent uint32) string {
	if parent == netlink.HANDLE_ROOT {
		return "root"
	}
	return netlink.HandleStr(parent)
}

func qdiscRecord(q netlink.Qdisc) api.QdiscRecord {
	attrs := q.Attrs()
	r := api.QdiscRecord{
		Kind:   q.Type(),
		Handle: netlink.HandleStr(attrs.Handle),
		Parent: parentStr(attrs.Parent),
	}
	if netem, ok := q.(*netlink.Netem); ok {
		// netem latency is kept in scheduler ticks
		us := float64(netem.Latency) / netlink.TickInUsec()
		r.DelayMs = uint32(math.Round(us / 1000))
		r.Limit = netem.Limit
	}
	return r
}

func classRecord(c netlink.Class) api.ClassRecord {
	attrs := c.Attrs()
	r := api.ClassRecord{
		Kind:   c.Type(),
		Handle: netlink.HandleStr(attrs.Handle),
		Parent: parentStr(attrs.Parent),
	}
	if htb, ok := c.(*netlink.HtbClass); ok {
		// the kernel reports bytes per second
		r.RateBps = htb.Rate * 8
		r.CeilBps = htb.Ceil * 8
	}
	return r
}
