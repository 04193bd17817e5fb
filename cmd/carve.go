package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VinayK8866/project-phoenix/carver"
	"github.com/VinayK8866/project-phoenix/disk"
	"github.com/VinayK8866/project-phoenix/reader"
)

var (
	carveOffset int64
	carveLength int64
)

var carveCmd = &cobra.Command{
	Use:     "carve",
	Short:   "Signature-scan a raw byte range, ignoring any file system",
	PreRunE: requireSource,
	RunE:    runCarve,
}

func init() {
	carveCmd.Flags().Int64Var(&carveOffset, "offset", 0, "byte offset to start at")
	carveCmd.Flags().Int64Var(&carveLength, "length", 0, "bytes to scan, zero means to the end of the source")
}

func runCarve(cmd *cobra.Command, args []string) error {
	dsk := new(disk.Disk)
	if err := dsk.Initialize(sourcePath, resolveSourceType()); err != nil {
		return err
	}
	defer dsk.Close()

	db, err := carver.LoadDatabase(viper.GetString("signatures"))
	if err != nil {
		return err
	}

	overlap := db.MaxHeaderLen()
	if footerLen := db.MaxFooterLen(); footerLen > overlap {
		overlap = footerLen
	}
	br := reader.New(dsk.Handler, viper.GetInt("chunksize"), overlap)
	length := carveLength
	if length <= 0 {
		length = br.TotalSize() - carveOffset
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := carver.New(db, viper.GetInt("maxcarves"))
	items, err := c.Scan(ctx, br, reader.Extent{Offset: carveOffset, Length: length})
	for _, item := range items {
		fmt.Printf("%s  %d bytes at %d  %s\n", item.Filename(), item.Extent.Length,
			item.Extent.Offset, item.Confidence)
	}
	stats := c.GetStats()
	fmt.Printf("\nheaders %d  completed %d  truncated %d  forced closes %d\n",
		stats.HeadersMatched, stats.Completed, stats.Truncated, stats.ResourceExhausted)
	return err
}
