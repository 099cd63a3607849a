package cmd

import (
	"context"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/master"
	"github.com/denlap007/fidelio/internal/naming"
	"github.com/denlap007/fidelio/internal/schema"
	"github.com/denlap007/fidelio/internal/store"
)

// newStatusCmd implements the `status` subcommand of spec §6: render the
// naming-service tree as a table, one row per container named in the
// application schema, with a spinner while connecting to the coordination
// store (grounded on the teacher's cmd/list.go table and
// internal/cli/executor.go spinner).
func newStatusCmd() *cobra.Command {
	var schemaPath string

	c := &cobra.Command{
		Use:   "status",
		Short: "Show the naming-service status of every container in an application schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := schema.LoadFile(schemaPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			st := newStore()

			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " Connecting to coordination store..."
			s.Start()
			err = connectStore(ctx, st)
			s.Stop()
			if err != nil {
				return err
			}

			nsvc := naming.New(master.DefaultLayout().NamingRoot)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{
				text.Colors{text.FgHiBlue, text.Bold}.Sprint("SERVICE"),
				text.Colors{text.FgHiBlue, text.Bold}.Sprint("TYPE"),
				text.Colors{text.FgHiBlue, text.Bold}.Sprint("STATUS"),
				text.Colors{text.FgHiBlue, text.Bold}.Sprint("CONTAINER PATH"),
			})

			for _, d := range descs {
				status, containerPath := "UNKNOWN", "-"
				data, _, res := st.GetData(nsvc.Path(d.ServiceName), nil)
				if res == store.OK {
					if payload, err := nsvc.Decode(data); err == nil {
						status = string(payload.Status)
						containerPath = payload.ContainerPath
					}
				} else if res == store.NoNode {
					status = "NOT_REGISTERED"
				}
				t.AppendRow(table.Row{d.ServiceName, d.Type, status, containerPath})
			}
			t.Render()
			return nil
		},
	}

	c.Flags().StringVar(&schemaPath, "schema", "", "path to the application descriptor file")
	_ = c.MarkFlagRequired("schema")
	addStoreFlags(c)
	return c
}
