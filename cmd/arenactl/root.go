package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jzwood/wasm-dynamic-memory/heap"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	noColor  bool
	pageSize uint32
	maxSize  uint32
)

var rootCmd = &cobra.Command{
	Use:   "arenactl",
	Short: "Drive and inspect first-fit heap arenas",
	Long: `arenactl runs allocation scripts against a first-fit heap, opens an
interactive allocator shell, and inspects saved arena snapshots.

Arenas grow in pages up to a ceiling; both can be set with --page-size and
--max-size.`,
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().
		Uint32Var(&pageSize, "page-size", 0, "Arena growth increment in bytes (default 65536)")
	rootCmd.PersistentFlags().
		Uint32Var(&maxSize, "max-size", 0, "Arena size ceiling in bytes (default 4 GiB minus one page)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// heapOptions builds heap options from the global flags.
func heapOptions() *heap.Options {
	return &heap.Options{
		PageSize: pageSize,
		MaxSize:  maxSize,
		Logger:   newLogger(),
	}
}

// newLogger returns a debug logger on stderr in verbose mode. Otherwise it
// returns nil and the heap falls back to ARENA_LOG_ALLOC.
func newLogger() *slog.Logger {
	if verbose && !quiet {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return nil
}

// printer formats byte counts with digit grouping.
var printer = message.NewPrinter(language.English)

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
