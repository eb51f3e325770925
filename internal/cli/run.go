package cli

import (
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
)

var (
	serveAddr       string
	serveWithWorker bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled aggregation and scrape worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), app.ServeOptions{Addr: serveAddr, WithWorker: serveWithWorker})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the bundled database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context(), cmd.OutOrStdout())
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search indexes from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reindex(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to server.addr)")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "Also run the scheduled worker in this process")
}
