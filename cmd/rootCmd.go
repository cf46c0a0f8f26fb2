package cmd

import (
	"L4STestbed/pkg"
	"L4STestbed/pkg/config"
	"L4STestbed/pkg/shellx"
	"context"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ControllerFactory builds the NetworkController for one invocation.
type ControllerFactory func(c *config.Config) pkg.NetworkController

// KernelControllerFactory drives the real kernel.
func KernelControllerFactory(c *config.Config) pkg.NetworkController {
	runner := &shellx.Runner{
		Logger:  log.WithField("component", "exec"),
		Timeout: c.CommandTimeout,
	}
	return pkg.NewKernelController(runner, c.NetworkRestartCmd)
}

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	newController ControllerFactory
	cfg           *config.Config
	testbed       *pkg.Testbed
}

// NewRootCmd assembles the command tree. Tests pass a fake factory.
func NewRootCmd(newController ControllerFactory) *cobra.Command {
	a := &app{newController: newController}

	rootCmd := &cobra.Command{
		Use:   "l4stestbed",
		Short: "L4S testbed topology and impairment orchestrator",
		Long: `Configure, verify and tear down one side of the two host L4S testbed:
OVS bridges, veth pairs, the router namespace and its netem/htb/dualpi2 qdiscs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default /etc/l4stestbed/l4stestbed.yaml or ./l4stestbed.yaml)")
	flags.String("side", "", "which device this host is: A or B")
	flags.String("uplink", "", "physical uplink interface")
	flags.String("log-format", "", "log format: text, logfmt, json or cli")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newSetupCmd(a),
		newCleanCmd(a),
		newVerifyCmd(a),
		newPlanCmd(a),
	)
	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	v := config.New(file)
	if err := config.Read(v, file != ""); err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := setupLogging(c.LogFormat, c.Verbose, cmd.ErrOrStderr()); err != nil {
		return err
	}
	if f := v.ConfigFileUsed(); f != "" {
		log.WithField("file", f).Debug("config loaded")
	}

	side, err := c.ResolveSide()
	if err != nil {
		return err
	}
	a.cfg = c
	a.testbed = pkg.NewTestbed(a.newController(c), side, c.LockDir)
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	bindings := map[string]string{
		config.KeySide:      "side",
		config.KeyUplink:    "uplink",
		config.KeyLogFormat: "log-format",
		config.KeyVerbose:   "verbose",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteContext runs the CLI against the live kernel. It is called by
// main.main().
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd(KernelControllerFactory).ExecuteContext(ctx)
}
