package commands

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/bkingest/bookkeeping/sqlstore"
	"github.com/teranos/bkingest/db"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the bookkeeping database",
	Long: sym.DB + ` db — Manage the bookkeeping database

Examples:
  bkingest db migrate               # apply pending schema migrations
  bkingest db stats                 # row counts per table
  bkingest db seed reference.toml   # load file types, steps, productions...`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts of the bookkeeping tables",
	RunE:  runDbStats,
}

var dbSeedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load reference data from a TOML or YAML file",
	Long: `Load reference data into the database: file types, event types, steps,
productions, run quality flags and pre-existing files with their replicas.

The format follows the file extension (.toml, .yaml or .yml).`,
	Args: cobra.ExactArgs(1),
	RunE: runDbSeed,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbSeedCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s is at schema %s", cfg.Database.Path, strings.Join(versions, ", "))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	pterm.Printfln("%s Database Statistics  %s", sym.DB, cfg.Database.Path)
	table := pterm.TableData{{"Table", "Rows"}}
	for _, c := range counts {
		table = append(table, []string{c.Table, strconv.FormatInt(c.Rows, 10)})
	}
	return pterm.DefaultTable.WithHasHeader().WithRightAlignment().WithData(table).Render()
}

func runDbSeed(cmd *cobra.Command, args []string) error {
	seed, err := readSeed(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	counts, err := store.ApplySeed(cmd.Context(), seed)
	if err != nil {
		return errors.Wrapf(err, "seeding from %s stopped", args[0])
	}
	pterm.Success.Printfln("Seeded %d file types, %d event types, %d steps, %d productions, %d run quality flags, %d files",
		counts.FileTypes, counts.EventTypes, counts.Steps, counts.Productions, counts.RunQuality, counts.Files)
	return nil
}

func readSeed(path string) (sqlstore.Seed, error) {
	var seed sqlstore.Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, errors.Wrapf(err, "failed to read seed file %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &seed)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &seed)
	default:
		return seed, errors.Newf("unsupported seed format %q (supported: .toml, .yaml, .yml)", ext)
	}
	if err != nil {
		return seed, errors.Wrapf(err, "failed to parse seed file %s", path)
	}
	return seed, nil
}
