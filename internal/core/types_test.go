package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCompare(t *testing.T) {
	assert.Equal(t, -1, Key{int64(1)}.Compare(Key{int64(2)}))
	assert.Equal(t, 0, Key{int64(5)}.Compare(Key{int64(5)}))
	assert.Equal(t, 1, Key{"b"}.Compare(Key{"a"}))
}

func TestKeyCompareArityMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		Key{int64(1)}.Compare(Key{int64(1), int64(2)})
	})
}

func TestColumnSetCompatible(t *testing.T) {
	a := ColumnSet{KeyColumns: []string{"id"}, UpdateColumn: "ts", ExtraColumns: []string{"name", "age"}}
	b := ColumnSet{KeyColumns: []string{"id"}, UpdateColumn: "ts", ExtraColumns: []string{"name", "age"}}
	require.NoError(t, a.Compatible(b))

	c := ColumnSet{KeyColumns: []string{"id", "tenant"}, UpdateColumn: "ts", ExtraColumns: []string{"name"}}
	assert.Error(t, a.Compatible(c))

	d := ColumnSet{KeyColumns: []string{"id"}, ExtraColumns: []string{"name", "age"}}
	assert.Error(t, a.Compatible(d), "update column presence must match")
}
