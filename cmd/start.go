package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/master"
	"github.com/denlap007/fidelio/internal/schema"
)

// newStartCmd implements the `start` subcommand of spec §6: parse an
// application schema into container descriptors and hand them to a Master,
// which lays out the coordination-store tree and launches every container.
func newStartCmd() *cobra.Command {
	var schemaPath string

	c := &cobra.Command{
		Use:   "start",
		Short: "Launch every container described by an application schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := schema.LoadFile(schemaPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			m := master.New(master.Config{
				Store:   newStore(),
				Runtime: newRuntime(),
				Hosts:   zkHosts,
			})
			if err := m.Launch(ctx, descs); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "launched %d container(s) from %s\n", len(descs), schemaPath)
			return nil
		},
	}

	c.Flags().StringVar(&schemaPath, "schema", "", "path to the application descriptor file")
	_ = c.MarkFlagRequired("schema")
	addStoreFlags(c)
	return c
}
