package commands

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/bkingest/am"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/logger"
	"github.com/teranos/bkingest/spool"
	"github.com/teranos/bkingest/sym"
)

// SpoolCmd processes the drop directory
var SpoolCmd = &cobra.Command{
	Use:   "spool",
	Short: sym.Spool + " Process the document drop directory",
	Long: sym.Spool + ` spool — Process the document drop directory

Documents placed in ingest.spool_dir are ingested one at a time in name
order and moved to ingest.done_dir or ingest.failed_dir. A rejected
document gets a sibling .err file with the reason.

Examples:
  bkingest spool run      # drain the spool once
  bkingest spool watch    # keep draining as documents arrive`,
}

var spoolRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain the spool directory once",
	RunE:  runSpoolRun,
}

var spoolWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Drain the spool directory whenever documents arrive",
	Long: `Watch the spool directory and ingest documents as they arrive.

Changes to ingest.watch_debounce_ms in the loaded config files take effect
without a restart. Stop with Ctrl-C.`,
	RunE: runSpoolWatch,
}

func init() {
	SpoolCmd.AddCommand(spoolRunCmd)
	SpoolCmd.AddCommand(spoolWatchCmd)
}

func newProcessor(p *pipeline) (*spool.Processor, error) {
	return spool.NewProcessor(p.manager, spool.Options{
		SpoolDir:  p.cfg.Ingest.SpoolDir,
		DoneDir:   p.cfg.Ingest.DoneDir,
		FailedDir: p.cfg.Ingest.FailedDir,
	})
}

func runSpoolRun(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	proc, err := newProcessor(p)
	if err != nil {
		return err
	}

	summary, err := proc.RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	if summary.Processed() == 0 {
		pterm.Info.Printfln("Spool %s is empty", proc.Dir())
		return nil
	}
	table := pterm.TableData{{"File", "Kind", "Result"}}
	for _, r := range summary.Results {
		if r.Err != nil {
			table = append(table, []string{r.File, "", pterm.Red(r.Err.Error())})
			continue
		}
		table = append(table, []string{r.File, r.Receipt.Kind.String(), pterm.Green("ok")})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return errors.Wrap(err, "failed to render results")
	}
	pterm.Printfln("%d ingested, %d failed", summary.Succeeded, summary.Failed)
	return nil
}

func runSpoolWatch(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	proc, err := newProcessor(p)
	if err != nil {
		return err
	}
	watcher := spool.NewWatcher(proc, time.Duration(p.cfg.Ingest.WatchDebounceMS)*time.Millisecond)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cw := watchConfig(watcher); cw != nil {
		defer cw.Stop()
	}

	pterm.Info.Printfln("Watching %s (Ctrl-C to stop)", proc.Dir())
	return watcher.Run(ctx)
}

// watchConfig hot-reloads the debounce period. Returns nil when no config file was loaded.
func watchConfig(watcher *spool.Watcher) *am.ConfigWatcher {
	files := am.LoadedFiles()
	if len(files) == 0 {
		return nil
	}

	cw, err := am.NewConfigWatcher(files, 500*time.Millisecond)
	if err != nil {
		logger.Warnw("Config hot-reload disabled", logger.FieldError, err)
		return nil
	}
	cw.OnReload(func(cfg *am.Config) error {
		d := time.Duration(cfg.Ingest.WatchDebounceMS) * time.Millisecond
		watcher.SetDebounce(d)
		logger.Infow("Spool debounce updated", "debounce_ms", cfg.Ingest.WatchDebounceMS, logger.FieldSymbol, sym.Spool)
		return nil
	})
	am.SetGlobalWatcher(cw)
	cw.Start()
	return cw
}
