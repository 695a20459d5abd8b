package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jzwood/wasm-dynamic-memory/heap/snapshot"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arenactl %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		fmt.Printf("  snapshot format: v%d\n", snapshot.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
