package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/bkingest/am"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/logger"
)

// NewRootCmd builds the bkingest command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bkingest",
		Short: "bkingest - bookkeeping job and replica registration",
		Long: `bkingest - Register production jobs, their output files and replicas
in the bookkeeping database.

Available commands:
  ingest  - Register Job and Replicas XML documents
  spool   - Process the document drop directory
  serve   - Receive documents over HTTP
  db      - Manage the bookkeeping database
  am      - Manage configuration
  version - Show build information

Examples:
  bkingest ingest job.xml          # Register one document
  bkingest spool watch             # Ingest documents as they arrive
  bkingest db stats                # Row counts per table
  bkingest am show --sources       # Where each setting comes from`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initLogging,
	}

	root.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	root.PersistentFlags().Bool("json-logs", false, "Emit JSON logs (default from log.json)")
	root.PersistentFlags().String("db", "", "Bookkeeping database path (overrides database.path)")

	root.AddCommand(IngestCmd)
	root.AddCommand(SpoolCmd)
	root.AddCommand(ServeCmd)
	root.AddCommand(DbCmd)
	root.AddCommand(AmCmd)
	root.AddCommand(VersionCmd)
	return root
}

// initLogging installs the global logger before any command runs
func initLogging(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	if !cmd.Flags().Changed("json-logs") {
		// An unloadable config is reported by the command itself
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
	}

	if err := logger.Initialize(jsonLogs, verbosity); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}
