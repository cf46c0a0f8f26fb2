package cmd

import (
	"L4STestbed/pkg/topology"

	"github.com/spf13/cobra"
)

func newPlanCmd(a *app) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved topology as YAML",
		Long: `Print names, addresses, routes and media ports of this side. With the
experiment parameters the sysctls and qdisc trees setup would apply are
included. Nothing is changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := topology.ForSide(a.testbed.Side())
			if anyParamSet(cmd.Flags()) {
				full, err := a.testbed.PlanFor(rawParams(cmd.Flags()))
				if err != nil {
					return usageOnValidation(cmd, err)
				}
				p = full
			}
			return renderYAML(cmd.OutOrStdout(), p)
		},
	}
	addParamFlags(planCmd.Flags())
	return planCmd
}
