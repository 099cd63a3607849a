package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/denlap007/fidelio/internal/broker"
)

// newBrokerCmd implements the in-container Broker entrypoint: the process
// every application container runs as its own PID 1 equivalent. The
// Master injects the node paths as environment variables
// (FIDELIO_CONF_PATH, FIDELIO_CONTAINER_PATH, FIDELIO_NS_ROOT,
// FIDELIO_SHUTDOWN_PATH); the coordination-store hosts come from
// --zk-hosts only. A flag that is set takes precedence over its env var,
// so the same binary can be driven directly for local testing without a
// Master.
func newBrokerCmd() *cobra.Command {
	var (
		serviceName   string
		confPath      string
		containerPath string
		nsRoot        string
		shutdownPath  string
	)

	c := &cobra.Command{
		Use:   "broker",
		Short: "Run a single container's Broker against its assigned coordination-store node paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := broker.Config{
				Hosts:          zkHosts,
				SessionTimeout: sessionTimeout,
				ServiceName:    envOrFlag("FIDELIO_SERVICE_NAME", serviceName),
				ConfPath:       envOrFlag("FIDELIO_CONF_PATH", confPath),
				ContainerPath:  envOrFlag("FIDELIO_CONTAINER_PATH", containerPath),
				NamingRoot:     envOrFlag("FIDELIO_NS_ROOT", nsRoot),
				ShutdownPath:   envOrFlag("FIDELIO_SHUTDOWN_PATH", shutdownPath),
			}
			if cfg.ConfPath == "" || cfg.ContainerPath == "" {
				return fmt.Errorf("broker: --conf-path/--container-path (or their FIDELIO_* env vars) are required")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			id := fmt.Sprintf("broker-%s-%s", cfg.ServiceName, uuid.NewString())
			b := broker.New(cfg, newStore(), id)
			return b.Run(ctx)
		},
	}

	c.Flags().StringVar(&serviceName, "service-name", "", "this container's service name (env FIDELIO_SERVICE_NAME)")
	c.Flags().StringVar(&confPath, "conf-path", "", "coordination-store path of this container's descriptor (env FIDELIO_CONF_PATH)")
	c.Flags().StringVar(&containerPath, "container-path", "", "coordination-store path this container claims (env FIDELIO_CONTAINER_PATH)")
	c.Flags().StringVar(&nsRoot, "ns-path", "", "coordination-store naming-service root (env FIDELIO_NS_ROOT)")
	c.Flags().StringVar(&shutdownPath, "shutdown-path", "", "coordination-store shutdown signal node (env FIDELIO_SHUTDOWN_PATH)")
	addStoreFlags(c)
	return c
}

func envOrFlag(envVar, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envVar)
}
