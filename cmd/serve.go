package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/transport/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the request API and live websocket feed",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = deps.App.Config.HTTP.Addr
		}

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// One live subscription keeps the shared lookup tables fresh for
		// every connection.
		lookups := deps.Requests.Lookups()
		handle, err := lookups.Subscribe(runCtx)
		if err != nil {
			return errs.Wrap(err, "subscribe lookup tables")
		}
		defer lookups.Unsubscribe(handle)

		server := httpapi.NewServer(deps.Requests, deps.Store)
		if err := server.ListenAndServe(runCtx, addr, deps.App.Config.HTTP.ShutdownTimeout); err != nil {
			logging.Error(ctx, "http server failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "serve http")
		}
		logging.Info(ctx, "http server stopped")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (defaults to http.addr)")
}
