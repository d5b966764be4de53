// Package config loads the TOML configuration file of §6's --conf/--run
// flags: named [database.*] connection profiles and named [run.*] diff
// presets, with run.default supplying fallback values for every other run.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Database is one [database.<name>] section: a connection URI and its
// worker-pool thread bound.
type Database struct {
	URI     string `toml:"uri"`
	Threads int    `toml:"threads"`
}

// Run is one [run.<name>] section, mirroring the CLI flag surface of §6 so
// a run can be launched with --conf FILE --run NAME instead of flags.
type Run struct {
	Database1           string   `toml:"database1"`
	Table1              string   `toml:"table1"`
	Database2           string   `toml:"database2"`
	Table2              string   `toml:"table2"`
	KeyColumns          []string `toml:"key_columns"`
	UpdateColumn        string   `toml:"update_column"`
	Columns             []string `toml:"columns"`
	Limit               int      `toml:"limit"`
	Where               string   `toml:"where"`
	Threads             int      `toml:"threads"`
	Algorithm           string   `toml:"algorithm"`
	BisectionThreshold  int      `toml:"bisection_threshold"`
	BisectionFactor     int      `toml:"bisection_factor"`
	MinAge              string   `toml:"min_age"`
	MaxAge              string   `toml:"max_age"`
	Stats               bool     `toml:"stats"`
	JSON                bool     `toml:"json"`
	Materialize         string   `toml:"materialize"`
	MaterializeAllRows  bool     `toml:"materialize_all_rows"`
	AssumeUniqueKey     bool     `toml:"assume_unique_key"`
	SampleExclusiveRows bool     `toml:"sample_exclusive_rows"`
	TableWriteLimit     int      `toml:"table_write_limit"`
	CaseSensitive       bool     `toml:"case_sensitive"`
}

// File is the top-level TOML document.
type File struct {
	Database map[string]Database `toml:"database"`
	Run      map[string]Run      `toml:"run"`
}

// DefaultRunName is the [run.default] section every other run inherits
// unset fields from.
const DefaultRunName = "default"

// Load reads and decodes a config file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	var cf File
	if _, err := toml.NewDecoder(f).Decode(&cf); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return &cf, nil
}

// ResolveRun returns the named run merged over run.default: any field left
// at its zero value in the named run falls back to run.default's value.
func (f *File) ResolveRun(name string) (Run, error) {
	run, ok := f.Run[name]
	if !ok {
		return Run{}, fmt.Errorf("config: no [run.%s] section", name)
	}
	if name == DefaultRunName {
		return run, nil
	}
	def := f.Run[DefaultRunName]
	return mergeRun(def, run), nil
}

// Database looks up a named [database.*] section.
func (f *File) Database(name string) (Database, error) {
	db, ok := f.Database[name]
	if !ok {
		return Database{}, fmt.Errorf("config: no [database.%s] section", name)
	}
	return db, nil
}

// mergeRun overlays override's non-zero fields on top of base.
func mergeRun(base, override Run) Run {
	out := base
	if override.Database1 != "" {
		out.Database1 = override.Database1
	}
	if override.Table1 != "" {
		out.Table1 = override.Table1
	}
	if override.Database2 != "" {
		out.Database2 = override.Database2
	}
	if override.Table2 != "" {
		out.Table2 = override.Table2
	}
	if len(override.KeyColumns) > 0 {
		out.KeyColumns = override.KeyColumns
	}
	if override.UpdateColumn != "" {
		out.UpdateColumn = override.UpdateColumn
	}
	if len(override.Columns) > 0 {
		out.Columns = override.Columns
	}
	if override.Limit != 0 {
		out.Limit = override.Limit
	}
	if override.Where != "" {
		out.Where = override.Where
	}
	if override.Threads != 0 {
		out.Threads = override.Threads
	}
	if override.Algorithm != "" {
		out.Algorithm = override.Algorithm
	}
	if override.BisectionThreshold != 0 {
		out.BisectionThreshold = override.BisectionThreshold
	}
	if override.BisectionFactor != 0 {
		out.BisectionFactor = override.BisectionFactor
	}
	if override.MinAge != "" {
		out.MinAge = override.MinAge
	}
	if override.MaxAge != "" {
		out.MaxAge = override.MaxAge
	}
	if override.Materialize != "" {
		out.Materialize = override.Materialize
	}
	if override.TableWriteLimit != 0 {
		out.TableWriteLimit = override.TableWriteLimit
	}
	// Booleans have no "unset" state in TOML; a named run always takes its
	// own value for them rather than inheriting run.default's.
	out.Stats = override.Stats
	out.JSON = override.JSON
	out.MaterializeAllRows = override.MaterializeAllRows
	out.AssumeUniqueKey = override.AssumeUniqueKey
	out.SampleExclusiveRows = override.SampleExclusiveRows
	out.CaseSensitive = override.CaseSensitive
	return out
}
