package cmd

import (
	"L4STestbed/api"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderReport prints r for a human comparing it against the parameters
// they asked for.
func renderReport(w io.Writer, r api.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "side %s\n", r.Side)
	for _, s := range r.Scopes {
		fmt.Fprintf(tw, "\n== %s ==\n", s.Scope)
		if !s.Present {
			fmt.Fprintln(tw, "  not present, skipped")
			continue
		}
		for _, v := range s.Sysctls {
			if v.Error != "" {
				fmt.Fprintf(tw, "  %s\t<%s>\n", v.Key, v.Error)
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\n", v.Key, v.Value)
		}
		for _, t := range s.Trees {
			fmt.Fprintf(tw, "  qdisc dev %s\n", t.Interface)
			if t.Error != "" {
				fmt.Fprintf(tw, "    <%s>\n", t.Error)
				continue
			}
			for _, q := range t.Qdiscs {
				fmt.Fprintf(tw, "    %s %s\tparent %s\t%s\n", q.Kind, q.Handle, q.Parent, qdiscDetail(q))
			}
			for _, c := range t.Classes {
				fmt.Fprintf(tw, "    class %s %s\tparent %s\t%s\n", c.Kind, c.Handle, c.Parent, classDetail(c))
			}
		}
	}
	return tw.Flush()
}

func qdiscDetail(q api.QdiscRecord) string {
	var parts []string
	if q.Kind == string(api.QdiscNetem) {
		parts = append(parts, fmt.Sprintf("delay %dms", q.DelayMs))
		if q.Limit > 0 {
			parts = append(parts, fmt.Sprintf("limit %d", q.Limit))
		}
	}
	return strings.Join(parts, " ")
}

func classDetail(c api.ClassRecord) string {
	if c.RateBps == 0 {
		return ""
	}
	return "rate " + formatRate(c.RateBps)
}

// formatRate prints bps with the largest SI unit that divides it exactly,
// so 10Mbit reads back as 10Mbit.
func formatRate(bps uint64) string {
	for _, u := range []api.RateUnit{api.Gbit, api.Mbit, api.Kbit} {
		if m := u.Multiplier(); bps >= m && bps%m == 0 {
			return fmt.Sprintf("%d%s", bps/m, u)
		}
	}
	return fmt.Sprintf("%dbit", bps)
}

func renderMismatches(w io.Writer, ms []api.Mismatch) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tWHAT\tEXPECTED\tACTUAL")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Scope, m.What, m.Expected, m.Actual)
	}
	return tw.Flush()
}
