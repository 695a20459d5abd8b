package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/message"

	"github.com/jzwood/wasm-dynamic-memory/heap"
	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
)

// errSyntax marks a malformed script line. Allocator failures are reported
// in the step result instead.
var errSyntax = errors.New("syntax error")

// commands lists the script verbs, also used for shell completion.
var commands = []string{"alloc", "free", "write", "read", "blocks", "stats", "verify", "save"}

// step is the outcome of one script command.
type step struct {
	Line   int           `json:"line"`
	Op     string        `json:"op"`
	Name   string        `json:"name,omitempty"`
	Addr   uint32        `json:"addr,omitempty"`
	Size   uint32        `json:"size,omitempty"`
	Data   string        `json:"data,omitempty"`
	Path   string        `json:"path,omitempty"`
	Blocks []alloc.Block `json:"blocks,omitempty"`
	Stats  *alloc.Stats  `json:"stats,omitempty"`
	Usage  *alloc.Usage  `json:"usage,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// session executes script commands against one heap and remembers names
// bound with "alloc N as NAME".
type session struct {
	h     *heap.Heap
	names map[string]uint32
	p     *message.Printer
}

func newSession(h *heap.Heap) *session {
	return &session{h: h, names: make(map[string]uint32), p: printer}
}

// exec runs one line. Blank lines and comments yield ok == false.
func (s *session) exec(lineNo int, line string) (st step, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return step{}, false, nil
	}
	op, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	st = step{Line: lineNo, Op: op}

	switch op {
	case "alloc":
		err = s.alloc(&st, rest)
	case "free":
		err = s.free(&st, rest)
	case "write":
		err = s.write(&st, rest)
	case "read":
		err = s.read(&st, rest)
	case "blocks":
		st.Blocks, err = s.h.Blocks()
	case "stats":
		stats := s.h.Stats()
		st.Stats = &stats
		var u alloc.Usage
		if u, err = s.h.Usage(); err == nil {
			st.Usage = &u
		}
	case "verify":
		err = s.h.Verify()
	case "save":
		err = s.save(&st, rest)
	default:
		return st, true, fmt.Errorf("%w: line %d: unknown command %q", errSyntax, lineNo, op)
	}
	if errors.Is(err, errSyntax) {
		return st, true, fmt.Errorf("line %d: %w", lineNo, err)
	}
	if err != nil {
		st.Error = err.Error()
	}
	return st, true, nil
}

func (s *session) alloc(st *step, args string) error {
	fields := strings.Fields(args)
	switch {
	case len(fields) == 1:
	case len(fields) == 3 && fields[1] == "as":
		st.Name = fields[2]
	default:
		return fmt.Errorf("%w: usage: alloc N [as NAME]", errSyntax)
	}
	n, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: bad size %q", errSyntax, fields[0])
	}
	st.Size = uint32(n)
	addr, err := s.h.Allocate(st.Size)
	if err != nil {
		return err
	}
	st.Addr = addr
	if st.Name != "" {
		s.names[st.Name] = addr
	}
	return nil
}

func (s *session) free(st *step, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return fmt.Errorf("%w: usage: free ADDR|NAME", errSyntax)
	}
	addr, err := s.resolve(st, fields[0])
	if err != nil {
		return err
	}
	if err := s.h.Deallocate(addr); err != nil {
		return err
	}
	if st.Name != "" {
		delete(s.names, st.Name)
	}
	return nil
}

func (s *session) write(st *step, args string) error {
	target, text, ok := strings.Cut(args, " ")
	if !ok || target == "" {
		return fmt.Errorf("%w: usage: write ADDR|NAME TEXT", errSyntax)
	}
	addr, err := s.resolve(st, target)
	if err != nil {
		return err
	}
	st.Data = text
	st.Size = uint32(len(text))
	return s.h.Write(addr, []byte(text))
}

func (s *session) read(st *step, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return fmt.Errorf("%w: usage: read ADDR|NAME N", errSyntax)
	}
	addr, err := s.resolve(st, fields[0])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return fmt.Errorf("%w: bad length %q", errSyntax, fields[1])
	}
	st.Size = uint32(n)
	data, err := s.h.Read(addr, st.Size)
	if err != nil {
		return err
	}
	st.Data = string(data)
	return nil
}

func (s *session) save(st *step, args string) error {
	if args == "" {
		return fmt.Errorf("%w: usage: save PATH", errSyntax)
	}
	st.Path = args
	return saveSnapshot(s.h, args)
}

// resolve maps a numeric address or a bound name to an address.
func (s *session) resolve(st *step, ref string) (uint32, error) {
	if n, err := strconv.ParseUint(ref, 0, 32); err == nil {
		st.Addr = uint32(n)
		return st.Addr, nil
	}
	addr, ok := s.names[ref]
	if !ok {
		return 0, fmt.Errorf("%w: unknown name %q", errSyntax, ref)
	}
	st.Name = ref
	st.Addr = addr
	return addr, nil
}

// boundNames returns the bound names in sorted order.
func (s *session) boundNames() []string {
	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// run executes every line of r, calling emit for each command.
func (s *session) run(r io.Reader, emit func(step)) error {
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		st, ok, err := s.exec(lineNo, sc.Text())
		if err != nil {
			return err
		}
		if ok {
			emit(st)
		}
	}
	return sc.Err()
}

// saveSnapshot writes the heap image to path.
func saveSnapshot(h *heap.Heap, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := h.Snapshot(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// render writes the text form of st.
func (s *session) render(w io.Writer, st step) {
	if st.Error != "" {
		fmt.Fprintf(w, "%s: error: %s\n", st.Op, st.Error)
		return
	}
	switch st.Op {
	case "alloc":
		label := ""
		if st.Name != "" {
			label = " as " + st.Name
		}
		fmt.Fprintf(w, "alloc %s bytes -> 0x%08X%s\n", s.bytes(st.Size), st.Addr, label)
	case "free":
		fmt.Fprintf(w, "free 0x%08X\n", st.Addr)
	case "write":
		fmt.Fprintf(w, "write %s bytes at 0x%08X\n", s.bytes(st.Size), st.Addr)
	case "read":
		fmt.Fprintf(w, "read 0x%08X: %q\n", st.Addr, st.Data)
	case "blocks":
		s.renderBlocks(w, st.Blocks)
	case "stats":
		s.renderStats(w, *st.Stats, *st.Usage)
	case "verify":
		fmt.Fprintln(w, "verify: ok")
	case "save":
		fmt.Fprintf(w, "saved snapshot to %s\n", st.Path)
	}
}

func (s *session) renderBlocks(w io.Writer, blocks []alloc.Block) {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("%-10s  %-10s  %12s  %s", "BLOCK", "PAYLOAD", "SIZE", "STATE")))
	for _, b := range blocks {
		fmt.Fprintf(w, "0x%08X  0x%08X  %12s  %s\n", b.Addr, b.Payload(), s.bytes(b.Size), st.state(b.Free))
	}
}

// bytes formats a byte count with digit grouping.
func (s *session) bytes(n uint32) string { return s.p.Sprintf("%d", n) }

func (s *session) renderStats(w io.Writer, st alloc.Stats, u alloc.Usage) {
	s.renderUsage(w, u)
	s.p.Fprintf(w, "calls:      %d alloc (%d failed), %d free\n", st.AllocCalls, st.FailedAllocs, st.FreeCalls)
	s.p.Fprintf(w, "growth:     %d times, %d bytes\n", st.GrowCalls, st.GrowBytes)
	s.p.Fprintf(w, "walk:       %d headers, %d merges, %d splits\n", st.WalkSteps, st.Merges, st.Splits)
}

func (s *session) renderUsage(w io.Writer, u alloc.Usage) {
	s.p.Fprintf(w, "arena:      %d bytes in %d blocks (%d used, %d free)\n",
		u.ArenaBytes, u.Blocks, u.UsedBlocks, u.FreeBlocks)
	s.p.Fprintf(w, "used:       %d bytes\n", u.UsedBytes)
	s.p.Fprintf(w, "free:       %d bytes (largest %d, fragmentation %.1f%%)\n",
		u.FreeBytes, u.LargestFree, u.Fragmentation*100)
	s.p.Fprintf(w, "headers:    %d bytes\n", u.HeaderBytes)
}
