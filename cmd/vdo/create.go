package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KnightKu/kvdo/internal/config"
	"github.com/KnightKu/kvdo/internal/storage/boltstore"
)

func newCreateCommand() *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "create <table-line>",
		Short: "Parse a device-table line and initialize its backing store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := config.ParseDeviceTableLine(args[0])
			if err != nil {
				return err
			}
			if storePath == "" {
				storePath = fmt.Sprintf("%s.vdo", dt.ParentDevice)
			}
			store, err := boltstore.Open(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(),
				"created vdo V%d on %s: %d physical blocks, %d-byte logical blocks, "+
					"cache_size=%d, block_map_maximum_age=%d, deduplication=%v, "+
					"zones logical=%d physical=%d hash=%d, store=%s\n",
				dt.Version, dt.ParentDevice, dt.PhysicalBlocks, dt.LogicalBlockSize,
				dt.CacheSize, dt.BlockMapMaxAge, dt.Deduplication,
				dt.Threads.LogicalZones, dt.Threads.PhysicalZones, dt.Threads.HashZones,
				storePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "path to the backing bbolt store (default: <parent_device>.vdo)")
	return cmd
}
