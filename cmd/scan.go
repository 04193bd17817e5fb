package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VinayK8866/project-phoenix/disk"
	"github.com/VinayK8866/project-phoenix/exporter"
	"github.com/VinayK8866/project-phoenix/filtermanager"
	"github.com/VinayK8866/project-phoenix/filters"
	"github.com/VinayK8866/project-phoenix/manifest"
	"github.com/VinayK8866/project-phoenix/orchestrator"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/reporter"
)

var (
	scanExportDir      string
	scanHash           string
	scanExtensions     []string
	scanNames          []string
	scanMinSize        int64
	scanSkipDeleted    bool
	scanShowTimestamps bool
	scanShowExtents    bool
	scanShowFull       bool
)

var scanCmd = &cobra.Command{
	Use:     "scan",
	Short:   "Run a full recovery scan over the source",
	PreRunE: requireSource,
	RunE:    runScan,
}

func init() {
	scanCmd.Flags().String("mode", "", "recovery mode (intelligent, deep, intelligent-then-fallback)")
	scanCmd.Flags().Int("chunk-size", 0, "read chunk size in bytes")
	scanCmd.Flags().Int("max-carves", 0, "bound on concurrently pending carves")
	scanCmd.Flags().String("signatures", "", "path to a JSON signature database, empty uses the embedded set")
	scanCmd.Flags().StringSlice("hints", nil, "file system probe order override (ntfs, fat32, exfat)")
	viper.BindPFlag("mode", scanCmd.Flags().Lookup("mode"))
	viper.BindPFlag("chunksize", scanCmd.Flags().Lookup("chunk-size"))
	viper.BindPFlag("maxcarves", scanCmd.Flags().Lookup("max-carves"))
	viper.BindPFlag("signatures", scanCmd.Flags().Lookup("signatures"))
	viper.BindPFlag("hints", scanCmd.Flags().Lookup("hints"))

	scanCmd.Flags().StringVar(&scanExportDir, "export", "", "write recovered files under this directory")
	scanCmd.Flags().StringVar(&scanHash, "hash", "", "hash exported files (MD5 or SHA1)")
	scanCmd.Flags().StringSliceVar(&scanExtensions, "extensions", nil, "only report files with these extensions")
	scanCmd.Flags().StringSliceVar(&scanNames, "filenames", nil, "only report these file names")
	scanCmd.Flags().Int64Var(&scanMinSize, "min-size", 0, "only report files at least this many bytes")
	scanCmd.Flags().BoolVar(&scanSkipDeleted, "skip-deleted", false, "leave deleted entries out of the manifest")
	scanCmd.Flags().BoolVar(&scanShowTimestamps, "timestamps", false, "show entry timestamps")
	scanCmd.Flags().BoolVar(&scanShowExtents, "extents", false, "show entry extents")
	scanCmd.Flags().BoolVar(&scanShowFull, "full", false, "show every entry field")
}

func runScan(cmd *cobra.Command, args []string) error {
	mode, err := orchestrator.ParseMode(viper.GetString("mode"))
	if err != nil {
		return err
	}

	dsk := new(disk.Disk)
	if err := dsk.Initialize(sourcePath, resolveSourceType()); err != nil {
		return err
	}
	defer dsk.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := orchestrator.Config{
		Mode:             mode,
		ChunkSizeB:       viper.GetInt("chunksize"),
		MaxPendingCarves: viper.GetInt("maxcarves"),
		SignatureDBPath:  viper.GetString("signatures"),
		FileSystemHints:  viper.GetStringSlice("hints"),
		IncludeDeleted:   !scanSkipDeleted,
	}

	orch, err := orchestrator.New(dsk, cfg, nil)
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "scan finished with errors: %v\n", err)
	}

	entries := applyFilters(orch.Manifest().Entries())

	rp := reporter.Reporter{
		ShowPath:       true,
		ShowTimestamps: scanShowTimestamps,
		ShowExtents:    scanShowExtents,
		ShowConfidence: true,
		ShowFull:       scanShowFull,
	}
	rp.Show(entries)
	rp.ShowSummary(orch.Manifest().GetCounters())

	if scanExportDir != "" {
		exp := exporter.Exporter{Location: scanExportDir, Hash: strings.ToUpper(scanHash)}
		br := reader.New(dsk.Handler, cfg.ChunkSizeB, 0)
		if err := exp.Export(br, entries); err != nil {
			return err
		}
	}
	return nil
}

func applyFilters(entries []manifest.Entry) []manifest.Entry {
	var fm filtermanager.FilterManager
	if len(scanExtensions) > 0 {
		fm.Register(filters.ExtensionsFilter{Extensions: scanExtensions})
	}
	if len(scanNames) > 0 {
		fm.Register(filters.NameFilter{Filenames: scanNames})
	}
	if scanMinSize > 0 {
		fm.Register(filters.SizeFilter{MinB: scanMinSize})
	}
	fm.Register(filters.DeletedFilter{Include: !scanSkipDeleted})
	return fm.ApplyFilters(entries)
}
