package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/runtime"
	"github.com/denlap007/fidelio/internal/runtime/fake"
	"github.com/denlap007/fidelio/internal/store"
	"github.com/denlap007/fidelio/internal/store/memstore"
	"github.com/denlap007/fidelio/internal/store/zkstore"
)

// Shared flags for every command that talks to the coordination store,
// mirroring the teacher's pattern of inheriting a flag set across related
// subcommands (cmd/standalone.go's AddFlagSet) rather than redeclaring
// these on each command.
var (
	zkHosts        []string
	sessionTimeout time.Duration
	standalone     bool
)

// addStoreFlags registers the coordination-store connection flags spec §6
// names for the Master-facing commands (--zk-hosts, --session-timeout),
// plus --standalone for local development without a real ensemble.
func addStoreFlags(c *cobra.Command) {
	c.Flags().StringSliceVar(&zkHosts, "zk-hosts", nil, "coordination-store ensemble addresses (host:port,...)")
	c.Flags().DurationVar(&sessionTimeout, "session-timeout", 10*time.Second, "coordination-store session timeout")
	c.Flags().BoolVar(&standalone, "standalone", false, "use an in-memory coordination store and container runtime instead of a real ensemble/engine")
}

// newStore returns the store.Store implementation selected by --standalone:
// memstore for local development and demos, zkstore against a real
// ensemble otherwise.
func newStore() store.Store {
	if standalone {
		return memstore.New()
	}
	return zkstore.New()
}

// newRuntime returns the runtime.Client driving container lifecycle calls.
// A concrete container-engine integration is external collaborator code
// spec §6 places out of scope behind this narrow interface; no such
// integration ships with the CLI, so every mode (standalone or not) drives
// the same in-memory fake internal/master's own tests use. Passing a real
// engine client means implementing runtime.Client and wiring it into
// master.Config in place of this call.
func newRuntime() runtime.Client {
	return fake.New()
}

// connectStore opens a session against the selected store using the
// shared --zk-hosts/--session-timeout flags.
func connectStore(ctx context.Context, st store.Store) error {
	return st.Connect(ctx, zkHosts, sessionTimeout)
}
