// Package main implements the cairn command line tool. It registers
// base and derived tables, runs loads, compactions, and partition
// drops through the maintenance pipeline, and inspects status logs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cairndb/cairn/internal/app"
	"github.com/cairndb/cairn/internal/commit"
	"github.com/cairndb/cairn/internal/config"
	"github.com/cairndb/cairn/internal/maintain"
	"github.com/cairndb/cairn/pkg/types"
	"github.com/joho/godotenv"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Cairn - derived table maintenance for partitioned stores\n\n")
		fmt.Fprintf(os.Stderr, "Usage: cairn [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  register <table.json>             Register a base or derived table\n")
		fmt.Fprintf(os.Stderr, "  load <db.table> <file> [partition] Load a segment into a base table\n")
		fmt.Fprintf(os.Stderr, "  compact <db.table>                Compact a base table and its rollups\n")
		fmt.Fprintf(os.Stderr, "  drop-partition <db.table> <value> Drop one partition\n")
		fmt.Fprintf(os.Stderr, "  status <db.table>                 Print a table's status log\n")
		fmt.Fprintf(os.Stderr, "  sweep <db.table> <token>          Remove leaked artifacts of a token\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CAIRN_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  CAIRN_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  CAIRN_S3_BUCKET      S3 bucket for segment data\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("cairn version %s (commit: %s)\n", version, gitCommit)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// A .env file in the working directory overrides nothing that is
	// already set in the environment.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := run(ctx, application, cfg, args); err != nil {
		log.Fatalf("%v", err)
	}
}

// loadConfig builds the effective configuration: file, then
// environment, then flags.
func loadConfig(configFile, dataDir string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if configFile != "" {
		fileCfg, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

func run(ctx context.Context, a *app.App, cfg *config.Config, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "register":
		return cmdRegister(ctx, a, cfg, rest)
	case "load":
		return cmdLoad(ctx, a, rest)
	case "compact":
		return cmdCompact(ctx, a, rest)
	case "drop-partition":
		return cmdDropPartition(ctx, a, rest)
	case "status":
		return cmdStatus(ctx, a, rest)
	case "sweep":
		return cmdSweep(ctx, a, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// tableDefinition is the JSON document the register command consumes.
type tableDefinition struct {
	Database          string         `json:"database"`
	Name              string         `json:"name"`
	Role              string         `json:"role"`
	BaseTable         string         `json:"base_table,omitempty"`
	Columns           []types.Column `json:"columns"`
	DependencyColumns []string       `json:"dependency_columns,omitempty"`
}

func cmdRegister(ctx context.Context, a *app.App, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cairn register <table.json>")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read table definition: %w", err)
	}

	var def tableDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse table definition: %w", err)
	}

	table := types.Table{
		Database:    def.Database,
		Name:        def.Name,
		Role:        types.TableRole(def.Role),
		BaseTable:   def.BaseTable,
		MetadataDir: cfg.TableMetadataDir(def.Database, def.Name),
	}

	if err := a.Catalog.RegisterTable(ctx, table, def.Columns, def.DependencyColumns); err != nil {
		return err
	}
	fmt.Printf("registered %s table %s\n", table.Role, table.QualifiedName())
	return nil
}

func cmdLoad(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: cairn load <db.table> <file> [partition]")
	}

	table, err := resolveTable(ctx, a, args[0])
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read segment data: %w", err)
	}

	req := maintain.LoadRequest{Data: data}
	if len(args) == 3 {
		req.PartitionValue = args[2]
	}

	segID, err := a.Loader.Load(ctx, table, req)
	if err != nil {
		return err
	}
	fmt.Printf("loaded segment %s into %s\n", segID, table.QualifiedName())
	return nil
}

func cmdCompact(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cairn compact <db.table>")
	}

	table, err := resolveTable(ctx, a, args[0])
	if err != nil {
		return err
	}

	segID, err := a.Compactor.Compact(ctx, table)
	if err != nil {
		return err
	}
	if segID == "" {
		fmt.Printf("nothing to compact in %s\n", table.QualifiedName())
		return nil
	}
	fmt.Printf("compacted %s into segment %s\n", table.QualifiedName(), segID)
	return nil
}

func cmdDropPartition(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: cairn drop-partition <db.table> <value>")
	}

	table, err := resolveTable(ctx, a, args[0])
	if err != nil {
		return err
	}

	if err := a.Dropper.DropPartition(ctx, table, args[1]); err != nil {
		return err
	}
	fmt.Printf("dropped partition %q of %s\n", args[1], table.QualifiedName())
	return nil
}

func cmdStatus(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cairn status <db.table>")
	}

	table, err := resolveTable(ctx, a, args[0])
	if err != nil {
		return err
	}

	entries, err := a.Logs.ReadOrEmpty(table)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s): %d segments\n", table.QualifiedName(), table.Role, len(entries))
	for _, e := range entries {
		fmt.Printf("  %-6s %-28s partition=%-10q rows=%-8d bytes=%d\n",
			e.SegmentID, e.Status, e.PartitionValue, e.RowCount, e.SizeBytes)
	}
	return nil
}

func cmdSweep(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: cairn sweep <db.table> <token>")
	}

	table, err := resolveTable(ctx, a, args[0])
	if err != nil {
		return err
	}

	tables := []types.Table{table}
	dependents, err := a.Catalog.ListDependents(ctx, table.Database, table.Name)
	if err != nil {
		return err
	}
	tables = append(tables, dependents...)

	commit.Sweep(a.Logs, tables, args[1])
	fmt.Printf("swept artifacts of token %s\n", args[1])
	return nil
}

// resolveTable parses a db.table argument and looks it up in the
// catalog.
func resolveTable(ctx context.Context, a *app.App, qualified string) (types.Table, error) {
	var database, name string
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == '.' {
			database, name = qualified[:i], qualified[i+1:]
			break
		}
	}
	if database == "" || name == "" {
		return types.Table{}, fmt.Errorf("table must be given as db.table, got %q", qualified)
	}
	return a.Catalog.GetTable(ctx, database, name)
}
