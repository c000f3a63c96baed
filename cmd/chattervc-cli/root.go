package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/chattervc/internal/client"
)

const defaultServer = "http://127.0.0.1:7779"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	server  string
	timeout time.Duration
	apiKey  string
}

func (g *globalOptions) client() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(g.timeout)}
	if g.apiKey != "" {
		opts = append(opts, client.WithAPIKey(g.apiKey))
	}
	return client.New(g.server, opts...)
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "chattervc-cli",
		Short: "Command-line client for the chattervc speech server",
		Long: `chattervc-cli talks to a running chattervc server.

Commands:
  health     - check that the server is up
  models     - list the synthesis engines
  voices     - list (or rescan) the voice catalog
  say        - synthesise text into an audio file
  benchmark  - measure synthesis latency`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.server, "server", "s", defaultServer, "chattervc base URL")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Minute, "per-request timeout")
	root.PersistentFlags().StringVar(&g.apiKey, "api-key", "", "bearer token for servers behind an authenticating proxy")

	root.AddCommand(
		newHealthCmd(g),
		newModelsCmd(g),
		newVoicesCmd(g),
		newSayCmd(g),
		newBenchmarkCmd(g),
	)
	return root
}
