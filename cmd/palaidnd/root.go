package main

import (
	"github.com/spf13/cobra"

	"github.com/palaidn/palaidn/validator/constant"
)

const flagHome = "home"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "palaidnd",
		Short:        "Palaidn Subnet Validator Daemon",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String(flagHome, constant.DefaultNodeHome, "node home directory")

	InitRootCmd(rootCmd) // add subcommands like `init`, `start` and `version`

	return rootCmd
}
