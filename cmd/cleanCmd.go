package cmd

import (
	"L4STestbed/pkg"
	"github.com/spf13/cobra"
)

func newCleanCmd(a *app) *cobra.Command {
	var opts pkg.CleanOptions
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Tear the side down",
		Long: `Remove the testbed bridges, the host link and the router namespace, reset the
uplink and restart host networking. Missing objects are skipped and failed
deletions are logged without stopping the teardown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.testbed.Clean(cmd.Context(), opts)
			return err
		},
	}
	cleanCmd.Flags().BoolVar(&opts.PurgeBridges, "purge-bridges", false, "delete every OVS bridge on the host, not only the testbed ones")
	return cleanCmd
}
