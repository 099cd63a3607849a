package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/master"
	"github.com/denlap007/fidelio/internal/schema"
)

// newStopCmd implements the `stop` subcommand of spec §6: create the
// shutdown node, triggering every Broker's armed shutdown watch, then stop
// every container the runtime still knows about.
func newStopCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stop",
		Short: "Signal every running container to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st := newStore()
			if err := connectStore(ctx, st); err != nil {
				return err
			}

			m := master.New(master.Config{Store: st, Runtime: newRuntime(), Hosts: zkHosts})
			if err := m.Shutdown(ctx); err != nil {
				return err
			}
			if err := m.Stop(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
	addStoreFlags(c)
	return c
}

// newRestartCmd implements the `restart` subcommand of spec §6: stop every
// running container, then re-launch from the same application schema.
func newRestartCmd() *cobra.Command {
	var schemaPath string

	c := &cobra.Command{
		Use:   "restart",
		Short: "Stop and re-launch every container described by an application schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := schema.LoadFile(schemaPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			st := newStore()
			if err := connectStore(ctx, st); err != nil {
				return err
			}

			m := master.New(master.Config{Store: st, Runtime: newRuntime(), Hosts: zkHosts})
			if err := m.Shutdown(ctx); err != nil {
				return err
			}
			if err := m.Stop(ctx); err != nil {
				return err
			}
			if err := m.Launch(ctx, descs); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restarted %d container(s) from %s\n", len(descs), schemaPath)
			return nil
		},
	}

	c.Flags().StringVar(&schemaPath, "schema", "", "path to the application descriptor file")
	_ = c.MarkFlagRequired("schema")
	addStoreFlags(c)
	return c
}
