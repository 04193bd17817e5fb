package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VinayK8866/project-phoenix/disk"
	"github.com/VinayK8866/project-phoenix/reader"
)

var partitionsCmd = &cobra.Command{
	Use:     "partitions",
	Short:   "List the partition layout of the source",
	PreRunE: requireSource,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsk := new(disk.Disk)
		if err := dsk.Initialize(sourcePath, resolveSourceType()); err != nil {
			return err
		}
		defer dsk.Close()

		br := reader.New(dsk.Handler, 0, 0)
		if err := dsk.DiscoverPartitions(br); err != nil {
			return err
		}
		dsk.ListPartitions()
		return nil
	},
}
