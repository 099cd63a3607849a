package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
)

// newInspectCmd implements the `inspect` subcommand of spec §6: an
// interactive shell for walking the coordination-store tree, grounded on
// the teacher's internal/agent/repl.go readline loop. `get`/`stat` work
// against any store.Store; `ls` additionally needs child enumeration,
// which the narrow store.Store interface deliberately doesn't expose (spec
// §4.1/§6), so it only works against the --standalone memstore, whose
// Dump is used purely for this CLI's benefit.
func newInspectCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "inspect",
		Short: "Open an interactive shell over the coordination-store tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st := newStore()
			if err := connectStore(ctx, st); err != nil {
				return err
			}
			return runInspectREPL(st)
		},
	}
	addStoreFlags(c)
	return c
}

func runInspectREPL(st store.Store) error {
	historyFile := filepath.Join(os.TempDir(), ".fidelio_inspect_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fidelio» ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("inspect: create readline instance: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(os.Stdout, "fidelio inspect — commands: ls <path>, get <path>, stat <path>, exit")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect: readline: %w", err)
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return nil
		case "ls":
			inspectLs(rl.Stdout(), st, pathArg(fields))
		case "get":
			inspectGet(rl.Stdout(), st, pathArg(fields))
		case "stat":
			inspectStat(rl.Stdout(), st, pathArg(fields))
		default:
			fmt.Fprintf(os.Stdout, "unknown command %q\n", fields[0])
		}
	}
}

func pathArg(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func inspectLs(w io.Writer, st store.Store, prefix string) {
	dumper, ok := st.(*memstore.Store)
	if !ok {
		fmt.Fprintln(w, "ls requires --standalone: the coordination-store interface has no child-listing operation")
		return
	}
	var paths []string
	for path := range dumper.Dump() {
		if prefix == "" || strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Fprintln(w, path)
	}
}

func inspectGet(w io.Writer, st store.Store, path string) {
	if path == "" {
		fmt.Fprintln(w, "usage: get <path>")
		return
	}
	data, _, res := st.GetData(path, nil)
	if res != store.OK {
		fmt.Fprintf(w, "%s: %s\n", path, res)
		return
	}
	fmt.Fprintf(w, "%s\n", string(data))
}

func inspectStat(w io.Writer, st store.Store, path string) {
	if path == "" {
		fmt.Fprintln(w, "usage: stat <path>")
		return
	}
	exists, stat, res := st.Exists(path, nil)
	if res != store.OK {
		fmt.Fprintf(w, "%s: %s\n", path, res)
		return
	}
	fmt.Fprintf(w, "exists=%v version=%d\n", exists, stat.Version)
}
