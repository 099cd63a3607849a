package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/dependency"
	"github.com/denlap007/fidelio/internal/schema"
	"github.com/denlap007/fidelio/pkg/logging"
)

const validateDebounce = 200 * time.Millisecond

// newValidateCmd implements a dev-time schema check: parse an application
// descriptor file and run the dependency analyzer (spec §4.3) against it
// without connecting to any coordination store, reporting duplicate names
// or cycles before a real `start` ever reaches the Master. With --watch it
// re-validates whenever the schema file is written or created (the watch is
// set on its directory), grounded on
// the teacher's internal/reconciler/filesystem_detector.go fsnotify loop.
func newValidateCmd() *cobra.Command {
	var (
		schemaPath string
		watch      bool
	)

	c := &cobra.Command{
		Use:   "validate",
		Short: "Check an application schema for duplicate names and dependency cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOnce(cmd, schemaPath); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchSchema(cmd, schemaPath)
		},
	}

	c.Flags().StringVar(&schemaPath, "schema", "", "path to the application descriptor file")
	_ = c.MarkFlagRequired("schema")
	c.Flags().BoolVar(&watch, "watch", false, "re-validate whenever the schema file changes")
	return c
}

func validateOnce(cmd *cobra.Command, schemaPath string) error {
	descs, err := schema.LoadFile(schemaPath)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid: %v\n", err)
		return err
	}

	result := dependency.Analyze(descs)
	if !result.OK() {
		fmt.Fprintf(cmd.OutOrStdout(), "invalid: duplicate=%v circular=%v\n", result.Duplicate, result.Circular)
		return fmt.Errorf("validate: schema failed analysis: duplicate=%v circular=%v", result.Duplicate, result.Circular)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d container(s), no duplicates or cycles\n", len(descs))
	return nil
}

// watchSchema blocks, re-running validateOnce (after a short debounce)
// every time schemaPath itself is written or created. Watcher errors are
// logged and watching continues; it returns only when the watcher's
// channels close.
func watchSchema(cmd *cobra.Command, schemaPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("validate --watch: create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(schemaPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("validate --watch: watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(schemaPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(validateDebounce, func() {
				validateOnce(cmd, schemaPath)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Validate", "watcher error: %v", err)
		}
	}
}
