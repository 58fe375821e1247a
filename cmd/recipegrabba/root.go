package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "recipegrabba",
		Short:         "Import recipes from social media posts into Mealie",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newAcquireCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
