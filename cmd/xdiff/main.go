// Package main implements the xdiff CLI: cross-database and same-database
// table comparison, built on cobra the way the teacher project wires its
// own subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"xdiff/internal/config"
	"xdiff/internal/core"
	"xdiff/internal/db"
	_ "xdiff/internal/dialect/mssql"
	_ "xdiff/internal/dialect/mysql"
	_ "xdiff/internal/dialect/postgres"
	_ "xdiff/internal/dialect/sqlite"
	"xdiff/internal/diff"
	"xdiff/internal/output"
	"xdiff/internal/segment"
	"xdiff/internal/xlog"
)

type flags struct {
	keyColumns          []string
	updateColumn        string
	columns             []string
	limit               int
	where               string
	threads             int
	algorithm           string
	bisectionThreshold  int
	bisectionFactor     int
	minAge              string
	maxAge              string
	stats               bool
	jsonOut             bool
	materialize         string
	materializeAllRows  bool
	assumeUniqueKey     bool
	sampleExclusiveRows bool
	tableWriteLimit     int
	caseInsensitive     bool
	confFile            string
	runName             string
	debug               bool
	verbose             bool
	interactive         bool
}

func main() {
	f := &flags{}
	cmd := rootCmd(f)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xdiff:", err)
		os.Exit(1)
	}
}

func rootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xdiff [DB1 TABLE1 DB2 TABLE2 | DB TABLE1 TABLE2] [flags]",
		Short: "Compare two tables, across databases or within one",
		Long: `xdiff compares two tables row-by-row using a checksum-bisection
algorithm across databases, or a single join within one database, and
prints the rows that differ.`,
		Args: func(_ *cobra.Command, args []string) error {
			if f.confFile != "" {
				return nil
			}
			if len(args) != 3 && len(args) != 4 {
				return fmt.Errorf("expected \"DB1 TABLE1 DB2 TABLE2\" or \"DB TABLE1 TABLE2\", got %d argument(s)", len(args))
			}
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			return run(f, args)
		},
	}

	flagsSet := cmd.Flags()
	flagsSet.StringSliceVarP(&f.keyColumns, "key-columns", "k", nil, "comma-separated primary key column(s)")
	flagsSet.StringVarP(&f.updateColumn, "update-column", "t", "", "timestamp/version column used for --min-age/--max-age")
	flagsSet.StringSliceVarP(&f.columns, "columns", "c", nil, "comma-separated columns to compare (default: all columns except the key and update columns)")
	flagsSet.IntVarP(&f.limit, "limit", "l", 0, "hashdiff: stop after this many diffs (0 = unbounded); joindiff output is not limited")
	flagsSet.StringVarP(&f.where, "where", "w", "", "extra SQL predicate applied to both sides")
	flagsSet.IntVarP(&f.threads, "threads", "j", 4, "max concurrent queries per database")
	flagsSet.StringVarP(&f.algorithm, "algorithm", "a", "auto", "auto, hashdiff, or joindiff")
	flagsSet.IntVar(&f.bisectionThreshold, "bisection-threshold", 16384, "row count below which a segment is downloaded and compared directly")
	flagsSet.IntVar(&f.bisectionFactor, "bisection-factor", 32, "number of child segments per bisection step")
	flagsSet.StringVar(&f.minAge, "min-age", "", "exclude rows updated more recently than this (e.g. 1h, 10m, 2d)")
	flagsSet.StringVar(&f.maxAge, "max-age", "", "exclude rows updated longer ago than this (e.g. 1h, 10m, 2d)")
	flagsSet.BoolVarP(&f.stats, "stats", "s", false, "print run statistics after the diff")
	flagsSet.BoolVar(&f.jsonOut, "json", false, "emit newline-delimited JSON instead of text")
	flagsSet.StringVarP(&f.materialize, "materialize", "m", "", "joindiff: materialize differing rows into this table (%t expands to a timestamp)")
	flagsSet.BoolVar(&f.materializeAllRows, "materialize-all-rows", false, "joindiff: materialize every joined row, not just differences")
	flagsSet.BoolVar(&f.assumeUniqueKey, "assume-unique-key", false, "skip the uniqueness check on the key columns")
	flagsSet.BoolVar(&f.sampleExclusiveRows, "sample-exclusive-rows", false, "joindiff: cap exclusive-row output to a random sample")
	flagsSet.IntVar(&f.tableWriteLimit, "table-write-limit", 0, "joindiff: cap rows written by --materialize (0 = unbounded)")
	flagsSet.BoolVar(&f.caseInsensitive, "case-insensitive", false, "fold text columns to a common case before comparing")
	flagsSet.StringVar(&f.confFile, "conf", "", "TOML config file (use with --run)")
	flagsSet.StringVar(&f.runName, "run", "", "named [run.*] section of --conf to execute")
	flagsSet.BoolVarP(&f.debug, "debug", "d", false, "debug-level logging")
	flagsSet.BoolVarP(&f.verbose, "verbose", "v", false, "human-readable development logging")
	flagsSet.BoolVarP(&f.interactive, "interactive", "i", false, "confirm before destructive operations (--materialize)")

	return cmd
}

func run(f *flags, args []string) error {
	logger, err := xlog.New(f.debug, f.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	spec, err := resolveSpec(f, args)
	if err != nil {
		return err
	}

	if spec.materialize != "" && f.interactive {
		if !confirm(fmt.Sprintf("materialize differing rows into %q?", spec.materialize)) {
			return fmt.Errorf("aborted")
		}
	}

	dbL, err := db.Connect(ctx, spec.db1URI, spec.threads)
	if err != nil {
		return fmt.Errorf("connecting to first database: %w", err)
	}
	defer dbL.Close()

	dbR := dbL
	if spec.db2URI != spec.db1URI {
		dbR, err = db.Connect(ctx, spec.db2URI, spec.threads)
		if err != nil {
			return fmt.Errorf("connecting to second database: %w", err)
		}
		defer dbR.Close()
	}

	segL, err := connectToTable(ctx, dbL, spec.table1, spec)
	if err != nil {
		return fmt.Errorf("first table: %w", err)
	}
	segR, err := connectToTable(ctx, dbR, spec.table2, spec)
	if err != nil {
		return fmt.Errorf("second table: %w", err)
	}

	minAge, maxAge, err := parseAgeBounds(spec.minAge, spec.maxAge)
	if err != nil {
		return err
	}

	differ := diff.NewDiffer(diff.Options{
		Algorithm:           diff.Algorithm(spec.algorithm),
		BisectionFactor:     spec.bisectionFactor,
		BisectionThreshold:  spec.bisectionThreshold,
		AssumeUniqueKey:     spec.assumeUniqueKey,
		Limit:               spec.limit,
		Where:               spec.where,
		MinAge:              minAge,
		MaxAge:              maxAge,
		CaseSensitive:       !spec.caseInsensitive,
		SampleExclusiveRows: spec.sampleExclusiveRows,
		SampleSize:          1000,
		Materialize:         spec.materialize,
		MaterializeAllRows:  spec.materializeAllRows,
		TableWriteLimit:     spec.tableWriteLimit,
		Logger:              logger,
	})

	it, err := differ.Diff(ctx, segL, segR)
	if err != nil {
		return err
	}
	defer it.Close()

	format := "text"
	if spec.jsonOut {
		format = "json"
	}
	writer, err := output.NewWriter(format, os.Stdout)
	if err != nil {
		return err
	}

	for it.Next() {
		if err := writer.WriteRecord(it.Record()); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("diff: %w", err)
	}

	if spec.stats {
		if err := writer.WriteStats(it.Stats()); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
	}
	return nil
}

// runSpec is the fully-resolved set of inputs for one diff run, after
// merging CLI flags with an optional --conf/--run config section.
type runSpec struct {
	db1URI, table1 string
	db2URI, table2 string

	keyColumns          []string
	updateColumn        string
	columns             []string
	limit               int
	where               string
	threads             int
	algorithm           string
	bisectionThreshold  int
	bisectionFactor     int
	minAge              string
	maxAge              string
	stats               bool
	jsonOut             bool
	materialize         string
	materializeAllRows  bool
	assumeUniqueKey     bool
	sampleExclusiveRows bool
	tableWriteLimit     int
	caseInsensitive     bool
}

func resolveSpec(f *flags, args []string) (*runSpec, error) {
	if f.confFile != "" {
		return resolveFromConfig(f)
	}
	spec := &runSpec{
		keyColumns:          f.keyColumns,
		updateColumn:        f.updateColumn,
		columns:             f.columns,
		limit:               f.limit,
		where:               f.where,
		threads:             f.threads,
		algorithm:           f.algorithm,
		bisectionThreshold:  f.bisectionThreshold,
		bisectionFactor:     f.bisectionFactor,
		minAge:              f.minAge,
		maxAge:              f.maxAge,
		stats:               f.stats,
		jsonOut:             f.jsonOut,
		materialize:         f.materialize,
		materializeAllRows:  f.materializeAllRows,
		assumeUniqueKey:     f.assumeUniqueKey,
		sampleExclusiveRows: f.sampleExclusiveRows,
		tableWriteLimit:     f.tableWriteLimit,
		caseInsensitive:     f.caseInsensitive,
	}
	switch len(args) {
	case 4:
		spec.db1URI, spec.table1 = args[0], args[1]
		spec.db2URI, spec.table2 = args[2], args[3]
	case 3:
		spec.db1URI, spec.table1 = args[0], args[1]
		spec.db2URI, spec.table2 = args[0], args[2]
	}
	if len(spec.keyColumns) == 0 {
		return nil, fmt.Errorf("--key-columns is required")
	}
	return spec, nil
}

func resolveFromConfig(f *flags) (*runSpec, error) {
	if f.runName == "" {
		return nil, fmt.Errorf("--run is required with --conf")
	}
	cf, err := config.Load(f.confFile)
	if err != nil {
		return nil, err
	}
	run, err := cf.ResolveRun(f.runName)
	if err != nil {
		return nil, err
	}
	dbCfg1, err := cf.Database(run.Database1)
	if err != nil {
		return nil, err
	}
	dbCfg2 := dbCfg1
	if run.Database2 != "" {
		dbCfg2, err = cf.Database(run.Database2)
		if err != nil {
			return nil, err
		}
	}
	threads := run.Threads
	if threads == 0 {
		threads = dbCfg1.Threads
	}
	if threads == 0 {
		threads = 4
	}
	table2 := run.Table2
	if table2 == "" {
		table2 = run.Table1
	}
	return &runSpec{
		db1URI: dbCfg1.URI, table1: run.Table1,
		db2URI: dbCfg2.URI, table2: table2,
		keyColumns:          run.KeyColumns,
		updateColumn:        run.UpdateColumn,
		columns:             run.Columns,
		limit:               run.Limit,
		where:               run.Where,
		threads:             threads,
		algorithm:           orDefault(run.Algorithm, "auto"),
		bisectionThreshold:  orDefaultInt(run.BisectionThreshold, 16384),
		bisectionFactor:     orDefaultInt(run.BisectionFactor, 32),
		minAge:              run.MinAge,
		maxAge:              run.MaxAge,
		stats:               run.Stats,
		jsonOut:             run.JSON,
		materialize:         run.Materialize,
		materializeAllRows:  run.MaterializeAllRows,
		assumeUniqueKey:     run.AssumeUniqueKey,
		sampleExclusiveRows: run.SampleExclusiveRows,
		tableWriteLimit:     run.TableWriteLimit,
		caseInsensitive:     !run.CaseSensitive,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

// connectToTable builds a TableSegment for table (optionally "schema.table")
// on database, deriving the extra-column projection from the table's
// schema when spec.columns wasn't given explicitly.
func connectToTable(ctx context.Context, database db.Database, table string, spec *runSpec) (*segment.TableSegment, error) {
	schema, tableName := "", table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, tableName = table[:i], table[i+1:]
	}

	seg := &segment.TableSegment{
		DB:           database,
		Schema:       schema,
		Table:        tableName,
		KeyColumns:   spec.keyColumns,
		UpdateColumn: spec.updateColumn,
		ExtraColumns: spec.columns,
	}

	withSchema, err := seg.WithSchema(ctx)
	if err != nil {
		return nil, err
	}

	if len(spec.columns) == 0 {
		withSchema = withSchema.Override(func(s *segment.TableSegment) {
			s.ExtraColumns = inferExtraColumns(s.ColumnTypes, s.KeyColumns, s.UpdateColumn)
		})
	}
	return withSchema, nil
}

func inferExtraColumns(types map[string]core.ColumnType, key []string, update string) []string {
	excluded := make(map[string]bool, len(key)+1)
	for _, c := range key {
		excluded[c] = true
	}
	if update != "" {
		excluded[update] = true
	}
	out := make([]string, 0, len(types))
	for name := range types {
		if !excluded[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// parseAgeBounds parses --min-age/--max-age's duration grammar: anything
// time.ParseDuration accepts, plus a bare "Nd" day suffix it doesn't.
func parseAgeBounds(minAge, maxAge string) (min, max *time.Duration, err error) {
	if minAge != "" {
		d, err := parseDuration(minAge)
		if err != nil {
			return nil, nil, fmt.Errorf("--min-age: %w", err)
		}
		min = &d
	}
	if maxAge != "" {
		d, err := parseDuration(maxAge)
		if err != nil {
			return nil, nil, fmt.Errorf("--max-age: %w", err)
		}
		max = &d
	}
	return min, max, nil
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	var resp string
	_, _ = fmt.Scanln(&resp)
	resp = strings.ToLower(strings.TrimSpace(resp))
	return resp == "y" || resp == "yes"
}
