package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tracefood",
		Short:         "Farm-to-shelf custody tracking",
		Long:          "tracefood records food lots from harvest to shelf, authorizes each custodian hand-off and pays the originating farmer when a lot reaches its final stage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.noColor {
				pterm.DisableStyling()
			}
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default configs/tracefood.yaml when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable styled output")

	root.AddCommand(
		newServeCmd(a),
		newInitCmd(a),
		newMintCmd(a),
		newConfirmCmd(a),
		newLotCmd(a),
		newLotsCmd(a),
		newTokenCmd(a),
		newSnapshotCmd(a),
	)
	return root
}
