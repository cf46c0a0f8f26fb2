package cmd

import (
	"L4STestbed/api"
	"L4STestbed/pkg/util"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addParamFlags declares the five experiment parameters as plain strings;
// util.ParseExperimentConfig does all the validation.
func addParamFlags(fs *pflag.FlagSet) {
	fs.String(util.FlagDelay, "", "one way delay in ms added on ingress, 0 disables the delay emulator")
	fs.String(util.FlagECN, "", "net.ipv4.tcp_ecn mode: 0, 1, 2 or 3")
	fs.String(util.FlagCC, "", "congestion control: cubic, bbr, reno or prague")
	fs.String(util.FlagDualPI2, "", "attach dualpi2 under the rate limiter: 0 or 1")
	fs.String(util.FlagHTBRate, "", "egress rate, e.g. 10Mbit (K, M or G)")
}

func rawParams(fs *pflag.FlagSet) api.RawParams {
	get := func(name string) string {
		v, _ := fs.GetString(name)
		return v
	}
	return api.RawParams{
		Delay:   get(util.FlagDelay),
		ECN:     get(util.FlagECN),
		CC:      get(util.FlagCC),
		DualPI2: get(util.FlagDualPI2),
		HTBRate: get(util.FlagHTBRate),
	}
}

// anyParamSet reports whether at least one experiment flag was given.
func anyParamSet(fs *pflag.FlagSet) bool {
	for _, name := range []string{util.FlagDelay, util.FlagECN, util.FlagCC, util.FlagDualPI2, util.FlagHTBRate} {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

// usageOnValidation prints the usage of cmd when err is a validation error.
func usageOnValidation(cmd *cobra.Command, err error) error {
	if api.IsValidationError(err) {
		_ = cmd.Usage()
	}
	return err
}

func newSetupCmd(a *app) *cobra.Command {
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Apply the topology and impairments",
		Long: `Create bridges, veth pairs and the router namespace if missing, then apply
addresses, routes, sysctls and the qdisc trees for the given parameters.
All parameters are validated before anything is changed.`,
		Example: "  l4stestbed --side A setup --delay 50 --ecn 1 --cc cubic --dualpi2 0 --htb_rate 10Mbit",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.testbed.Setup(cmd.Context(), rawParams(cmd.Flags()))
			return usageOnValidation(cmd, err)
		},
	}
	addParamFlags(setupCmd.Flags())
	return setupCmd
}
