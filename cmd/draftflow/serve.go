package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/draftflow/internal/api"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports as JSON over HTTP",
		Long: `Start the JSON API. Reports live under /api/v1, raw rows page through
/api/v1/comparisons and /api/v1/threads, and fetch metrics are exposed at
/metrics for Prometheus. With --tls (or server.tls) the API is served over
HTTPS using a self-signed certificate kept in server.cert_dir.`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default from server.addr)")
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed certificate from server.cert_dir")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.cfg.Server.Addr = addr
	}
	if useTLS, _ := cmd.Flags().GetBool("tls"); useTLS {
		a.cfg.Server.TLS = true
	}

	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := a.newEngine(store, nil)
	if err != nil {
		return err
	}
	srv, err := api.New(eng, a.cfg.Server)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
