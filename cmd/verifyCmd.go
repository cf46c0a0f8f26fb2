package cmd

import (
	"L4STestbed/api"
	"L4STestbed/pkg"
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	var output string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Show the live sysctls and qdisc trees",
		Long: `Print tcp_ecn, tcp_congestion_control, ip_forward and tcp_no_metrics_save plus
the qdisc tree of every testbed interface, for the host and the router
namespace. Nothing is changed. When the experiment parameters are given the
live state is also compared against them and differences make the command
fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var expect *api.RawParams
			if anyParamSet(cmd.Flags()) {
				raw := rawParams(cmd.Flags())
				expect = &raw
			}
			report, mismatches, err := a.testbed.Verify(expect)
			if err != nil {
				return usageOnValidation(cmd, err)
			}

			out := cmd.OutOrStdout()
			switch output {
			case "text":
				err = renderReport(out, report)
			case "yaml":
				err = renderYAML(out, report)
			case "json":
				err = renderJSON(out, report)
			default:
				return fmt.Errorf("unknown output format %q (text, yaml, json)", output)
			}
			if err != nil {
				return err
			}

			if expect == nil {
				return nil
			}
			if len(mismatches) == 0 {
				log.Info("live state matches the expected configuration")
				return nil
			}
			fmt.Fprintln(out)
			if err := renderMismatches(out, mismatches); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d differences", pkg.ErrMismatch, len(mismatches))
		},
	}
	verifyCmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, yaml or json")
	addParamFlags(verifyCmd.Flags())
	return verifyCmd
}
