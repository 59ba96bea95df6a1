package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/bkingest/server"
	"github.com/teranos/bkingest/sym"
)

// ServeCmd runs the HTTP document receiver
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: sym.Server + " Receive bookkeeping documents over HTTP",
	Long: sym.Server + ` serve — Receive bookkeeping documents over HTTP

Routes:
  POST /api/documents        register one Job or Replicas XML document
  GET  /api/jobs/{id}        read a registered job back
  GET  /api/files?name=LFN   read a registered file back
  GET  /health               state and counters

Documents are registered one at a time. Stop with Ctrl-C; in-flight
requests are drained for server.shutdown_seconds.

Examples:
  bkingest serve
  bkingest serve --addr 0.0.0.0:8780`,
	RunE: runServe,
}

var serveAddr string

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := p.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(p.manager, p.store, server.Options{
		MaxDocumentBytes: p.cfg.Server.MaxDocumentBytes,
		ShutdownTimeout:  time.Duration(p.cfg.Server.ShutdownSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, addr)
}
