package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "vdo",
		Short: "Control surface for a VDO block-virtualization instance",
		Long: "vdo parses device-table lines and drives the admin messages " +
			"suspend, resume, stats, and dump-work-queues. The grow-logical, " +
			"grow-physical, set-compression, set-deduplication, and " +
			"dump-status messages are not implemented.",
		SilenceUsage: true,
	}
	root.AddCommand(newCreateCommand())
	root.AddCommand(newMessageCommand())
	return root
}
