package commands

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
	"github.com/teranos/bkingest/sym"
)

// IngestCmd registers bookkeeping XML documents given on the command line
var IngestCmd = &cobra.Command{
	Use:   "ingest <file.xml>...",
	Short: sym.IX + " Register job and replica documents",
	Long: sym.IX + ` ingest — Register bookkeeping documents

Each file is a Job or Replicas XML document. Files are ingested in the
order given; a rejected document does not stop the ones after it.

Examples:
  bkingest ingest job_00012345.xml
  bkingest ingest --db /data/bk.db spool/*.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	p, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	table := pterm.TableData{{"File", "Kind", "Job", "Result"}}
	failed := 0
	for _, path := range args {
		row := []string{filepath.Base(path), "", "", ""}

		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			row[3] = pterm.Red(err.Error())
			table = append(table, row)
			continue
		}

		receipt, err := p.manager.IngestBytes(cmd.Context(), data)
		if err != nil {
			failed++
			row[3] = pterm.Red(ingest.KindOf(err).String() + ": " + err.Error())
		} else {
			row[1] = receipt.Kind.String()
			if receipt.JobID != 0 {
				row[2] = strconv.FormatInt(receipt.JobID, 10)
			}
			row[3] = pterm.Green("ok")
		}
		table = append(table, row)
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return errors.Wrap(err, "failed to render results")
	}
	if failed > 0 {
		return errors.Newf("%d of %d documents failed", failed, len(args))
	}
	return nil
}
