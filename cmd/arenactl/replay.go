package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jzwood/wasm-dynamic-memory/heap"
	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
)

var (
	replayFile     string
	replaySnapshot string
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().StringVar(&replayFile, "file", "", "Run against a file-backed heap at this path")
	cmd.Flags().StringVar(&replaySnapshot, "snapshot", "", "Save a snapshot of the final arena to this path")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Run an allocation script",
		Long: `The replay command executes an allocation script against a fresh heap
and prints the result of every command followed by the final block map.

Script commands, one per line ('#' starts a comment):
  alloc N [as NAME]     allocate N bytes, optionally binding NAME to the address
  free ADDR|NAME        release an allocation
  write ADDR|NAME TEXT  copy TEXT into an allocation
  read ADDR|NAME N      print the first N bytes of an allocation
  blocks                print the block map
  stats                 print allocator counters and usage
  verify                check that the block chain tiles the arena
  save PATH             write a snapshot

Allocation failures are reported and the script continues; malformed lines
stop it. Use "-" to read the script from stdin.

Example:
  arenactl replay workload.txt
  arenactl replay workload.txt --page-size 4096 --max-size 65536
  arenactl replay workload.txt --file arena.heap --snapshot final.snap --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args)
		},
	}
	return cmd
}

// replayReport is the JSON form of a replay.
type replayReport struct {
	Steps  []step        `json:"steps"`
	Blocks []alloc.Block `json:"blocks"`
	Usage  alloc.Usage   `json:"usage"`
	Stats  alloc.Stats   `json:"stats"`
}

func runReplay(args []string) error {
	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		in = f
	}

	h, err := openHeap()
	if err != nil {
		return err
	}
	defer h.Close()

	s := newSession(h)
	var report replayReport
	err = s.run(in, func(st step) {
		if jsonOut {
			report.Steps = append(report.Steps, st)
			return
		}
		if !quiet {
			s.render(os.Stdout, st)
		}
	})
	if err != nil {
		return err
	}

	if replaySnapshot != "" {
		if err := saveSnapshot(h, replaySnapshot); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		printVerbose("Saved snapshot: %s\n", replaySnapshot)
	}

	blocks, err := h.Blocks()
	if err != nil {
		return fmt.Errorf("failed to walk blocks: %w", err)
	}
	usage, err := h.Usage()
	if err != nil {
		return fmt.Errorf("failed to compute usage: %w", err)
	}

	if jsonOut {
		report.Blocks = blocks
		report.Usage = usage
		report.Stats = h.Stats()
		return printJSON(report)
	}

	if !quiet {
		printInfo("\nFinal arena:\n")
		s.renderBlocks(os.Stdout, blocks)
		printInfo("\n")
		s.renderStats(os.Stdout, h.Stats(), usage)
	}
	return nil
}

// openHeap opens the heap selected by --file, or an in-process one.
func openHeap() (*heap.Heap, error) {
	if replayFile != "" {
		printVerbose("Opening heap file: %s\n", replayFile)
		h, err := heap.OpenFile(replayFile, heapOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open heap: %w", err)
		}
		return h, nil
	}
	h, err := heap.New(heapOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create heap: %w", err)
	}
	return h, nil
}
