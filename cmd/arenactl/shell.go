package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var shellHistory string

func init() {
	cmd := newShellCmd()
	cmd.Flags().StringVar(&shellHistory, "history", filepath.Join(os.TempDir(), ".arenactl_history"),
		"History file path")
	cmd.Flags().StringVar(&replayFile, "file", "", "Use a file-backed heap at this path")
	rootCmd.AddCommand(cmd)
}

func newShellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive allocator shell",
		Long: `The shell command opens a heap and reads script commands interactively.
Besides the replay commands it understands "names", "help" and "exit".

Example:
  arenactl shell
  arenactl shell --page-size 4096 --file arena.heap`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell()
		},
	}
	return cmd
}

func shellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+3)
	for _, c := range commands {
		items = append(items, readline.PcItem(c))
	}
	items = append(items, readline.PcItem("names"), readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func runShell() error {
	h, err := openHeap()
	if err != nil {
		return err
	}
	defer h.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arena> ",
		HistoryFile:     shellHistory,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	s := newSession(h)
	printInfo("arenactl %s, arena of %s bytes. Enter help for commands.\n", version, s.bytes(h.Size()))
	return shellLoop(s, rl.Readline, rl.Stdout())
}

// shellLoop reads lines until exit or EOF and runs them in s.
func shellLoop(s *session, readLine func() (string, error), out io.Writer) error {
	for lineNo := 1; ; lineNo++ {
		line, err := readLine()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.TrimSpace(line) {
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(out, shellHelp)
			continue
		case "names":
			for _, name := range s.boundNames() {
				fmt.Fprintf(out, "%-16s 0x%08X\n", name, s.names[name])
			}
			continue
		}

		st, ok, err := s.exec(lineNo, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if ok {
			s.render(out, st)
		}
	}
}

const shellHelp = `Commands:
  alloc N [as NAME]     allocate N bytes
  free ADDR|NAME        release an allocation
  write ADDR|NAME TEXT  copy TEXT into an allocation
  read ADDR|NAME N      print N bytes of an allocation
  blocks                print the block map
  stats                 print counters and usage
  verify                check the block chain
  save PATH             write a snapshot
  names                 list bound names
  exit                  leave the shell`
