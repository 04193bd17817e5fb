package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/VinayK8866/project-phoenix/logger"
)

var (
	sourcePath string
	sourceType string
	logActive  bool
)

var rootCmd = &cobra.Command{
	Use:   "phoenix",
	Short: "Dual-engine file recovery for NTFS, FAT32 and exFAT media",
	Long: `phoenix recovers files from damaged, deleted or reformatted storage
media. It combines metadata-driven reconstruction (NTFS MFT, FAT and
exFAT directory structures) with signature-based raw carving, reading
the source strictly read-only.

Raw images, EWF evidence containers, VMDK sparse disks and physical
drives are supported as sources.`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitializeLogger(logActive, viper.GetString("logfile"))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&sourcePath, "source", "", "path to the source device or image")
	rootCmd.PersistentFlags().StringVar(&sourceType, "source-type", "auto", "source type (auto, raw, ewf, vmdk, physicalDrive)")
	rootCmd.PersistentFlags().BoolVar(&logActive, "log", false, "write a scan log file")

	rootCmd.AddCommand(scanCmd, partitionsCmd, carveCmd)
}

func initConfig() {
	viper.SetConfigName("phoenix-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.phoenix")

	viper.SetDefault("mode", "intelligent-then-fallback")
	viper.SetDefault("chunksize", 512*1024)
	viper.SetDefault("maxcarves", 32)
	viper.SetDefault("signatures", "")
	viper.SetDefault("hints", []string{})
	viper.SetDefault("logfile", "phoenix.log")

	viper.SetEnvPrefix("PHOENIX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}
}

// resolveSourceType maps a source path to the disk handler mode.
func resolveSourceType() string {
	if sourceType != "auto" {
		return sourceType
	}
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".e01", ".ex01":
		return "ewf"
	case ".vmdk":
		return "vmdk"
	}
	if strings.HasPrefix(sourcePath, `\\.\`) || strings.HasPrefix(sourcePath, "/dev/") {
		return "physicalDrive"
	}
	return "raw"
}

func requireSource(cmd *cobra.Command, args []string) error {
	if sourcePath == "" {
		return fmt.Errorf("--source is required")
	}
	return nil
}
