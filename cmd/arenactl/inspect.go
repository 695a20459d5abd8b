package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jzwood/wasm-dynamic-memory/heap"
	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
	"github.com/jzwood/wasm-dynamic-memory/heap/snapshot"
)

func init() {
	rootCmd.AddCommand(newInspectCmd())
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Decode and verify an arena snapshot",
		Long: `The inspect command decodes a snapshot written by "save" or
"replay --snapshot", verifies its checksum and block chain, and prints the
header, the block map and usage.

Example:
  arenactl inspect final.snap
  arenactl inspect final.snap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args)
		},
	}
	return cmd
}

type inspectReport struct {
	Path       string          `json:"path"`
	Header     snapshot.Header `json:"header"`
	Compressed int             `json:"compressed_bytes"`
	Blocks     []alloc.Block   `json:"blocks"`
	Usage      alloc.Usage     `json:"usage"`
}

func runInspect(args []string) error {
	path := args[0]
	printVerbose("Reading snapshot: %s\n", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	hdr, err := snapshot.ReadHeader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	h, err := heap.Restore(bytes.NewReader(raw), heapOptions())
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	defer h.Close()

	blocks, err := h.Blocks()
	if err != nil {
		return fmt.Errorf("failed to walk blocks: %w", err)
	}
	usage, err := h.Usage()
	if err != nil {
		return fmt.Errorf("failed to compute usage: %w", err)
	}

	if jsonOut {
		return printJSON(inspectReport{
			Path:       path,
			Header:     hdr,
			Compressed: len(raw) - snapshot.HeaderSize,
			Blocks:     blocks,
			Usage:      usage,
		})
	}

	s := newSession(h)
	printInfo("\nSnapshot:\n")
	printInfo("  File: %s\n", path)
	printInfo("  Version: %d\n", hdr.Version)
	printInfo("  Origin: 0x%08X\n", hdr.Origin)
	printInfo("  Arena: %s bytes (%s compressed)\n", s.bytes(hdr.Size), s.bytes(uint32(len(raw)-snapshot.HeaderSize)))
	printInfo("  Checksum: %016x\n", hdr.Checksum)
	printInfo("\nValidation:\n")
	printInfo("  ✓ Checksum valid\n")
	printInfo("  ✓ Block chain tiles the arena\n\n")
	if !quiet {
		s.renderBlocks(os.Stdout, blocks)
		fmt.Fprintln(os.Stdout)
		s.renderUsage(os.Stdout, usage)
	}
	return nil
}
