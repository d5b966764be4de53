package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdiff/internal/core"
)

func TestRootCmdArgsAcceptsFourOrThreePositionalArgs(t *testing.T) {
	f := &flags{}
	cmd := rootCmd(f)

	assert.NoError(t, cmd.Args(cmd, []string{"db1", "t1", "db2", "t2"}))
	assert.NoError(t, cmd.Args(cmd, []string{"db", "t1", "t2"}))
	assert.Error(t, cmd.Args(cmd, []string{"db", "t1"}))
	assert.Error(t, cmd.Args(cmd, []string{}))
}

func TestRootCmdArgsAllowsAnyCountWithConfFile(t *testing.T) {
	f := &flags{confFile: "xdiff.toml"}
	cmd := rootCmd(f)
	assert.NoError(t, cmd.Args(cmd, nil))
	assert.NoError(t, cmd.Args(cmd, []string{"anything"}))
}

func TestResolveSpecThreeArgsReusesFirstDatabase(t *testing.T) {
	f := &flags{keyColumns: []string{"id"}}
	spec, err := resolveSpec(f, []string{"mysql://host/db", "t1", "t2"})
	require.NoError(t, err)
	assert.Equal(t, "mysql://host/db", spec.db1URI)
	assert.Equal(t, "mysql://host/db", spec.db2URI)
	assert.Equal(t, "t1", spec.table1)
	assert.Equal(t, "t2", spec.table2)
}

func TestResolveSpecFourArgsUsesBothDatabases(t *testing.T) {
	f := &flags{keyColumns: []string{"id"}}
	spec, err := resolveSpec(f, []string{"mysql://a/db", "t1", "pg://b/db", "t2"})
	require.NoError(t, err)
	assert.Equal(t, "mysql://a/db", spec.db1URI)
	assert.Equal(t, "pg://b/db", spec.db2URI)
}

func TestResolveSpecRequiresKeyColumns(t *testing.T) {
	f := &flags{}
	_, err := resolveSpec(f, []string{"db", "t1", "t2"})
	assert.Error(t, err)
}

func TestResolveFromConfigRequiresRunName(t *testing.T) {
	f := &flags{confFile: "ignored.toml"}
	_, err := resolveFromConfig(f)
	assert.Error(t, err)
}

func TestResolveFromConfigMergesDefaultsAndFallsBackTable2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xdiff.toml")
	body := `
[database.mysql1]
uri = "mysql://root@127.0.0.1:3306/app"
threads = 6

[run.nightly]
database1 = "mysql1"
table1 = "orders"
key_columns = ["id"]
case_sensitive = false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	f := &flags{confFile: path, runName: "nightly"}
	spec, err := resolveFromConfig(f)
	require.NoError(t, err)

	assert.Equal(t, "mysql://root@127.0.0.1:3306/app", spec.db1URI)
	assert.Equal(t, "mysql://root@127.0.0.1:3306/app", spec.db2URI, "database2 defaults to database1")
	assert.Equal(t, "orders", spec.table1)
	assert.Equal(t, "orders", spec.table2, "table2 defaults to table1")
	assert.Equal(t, 6, spec.threads, "threads falls back to the database section")
	assert.Equal(t, "auto", spec.algorithm)
	assert.Equal(t, 16384, spec.bisectionThreshold)
	assert.Equal(t, 32, spec.bisectionFactor)
	assert.True(t, spec.caseInsensitive, "caseInsensitive is the negation of the config's case_sensitive")
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "auto", orDefault("", "auto"))
	assert.Equal(t, "hashdiff", orDefault("hashdiff", "auto"))
}

func TestOrDefaultInt(t *testing.T) {
	assert.Equal(t, 32, orDefaultInt(0, 32))
	assert.Equal(t, 8, orDefaultInt(8, 32))
}

func TestParseDurationAcceptsStdlibGrammar(t *testing.T) {
	d, err := parseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}

func TestParseDurationAcceptsBareDaySuffix(t *testing.T) {
	d, err := parseDuration("2d")
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, d)
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	_, err := parseDuration("banana")
	assert.Error(t, err)
}

func TestParseAgeBoundsReturnsNilWhenBothEmpty(t *testing.T) {
	min, max, err := parseAgeBounds("", "")
	require.NoError(t, err)
	assert.Nil(t, min)
	assert.Nil(t, max)
}

func TestParseAgeBoundsParsesBothSides(t *testing.T) {
	min, max, err := parseAgeBounds("5m", "7d")
	require.NoError(t, err)
	require.NotNil(t, min)
	require.NotNil(t, max)
	assert.Equal(t, 5*time.Minute, *min)
	assert.Equal(t, 7*24*time.Hour, *max)
}

func TestInferExtraColumnsExcludesKeyAndUpdateColumn(t *testing.T) {
	types := map[string]core.ColumnType{
		"id":      {Name: "id"},
		"ts":      {Name: "ts"},
		"name":    {Name: "name"},
		"balance": {Name: "balance"},
	}
	out := inferExtraColumns(types, []string{"id"}, "ts")
	assert.Equal(t, []string{"balance", "name"}, out, "sorted, excluding key and update columns")
}

func TestParseAgeBoundsWrapsFlagNameInError(t *testing.T) {
	_, _, err := parseAgeBounds("not-a-duration", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--min-age")
}
