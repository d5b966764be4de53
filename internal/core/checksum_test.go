package core

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowChecksumDeterministic(t *testing.T) {
	a := RowChecksum([]string{"1", "alice"})
	b := RowChecksum([]string{"1", "alice"})
	assert.Equal(t, a, b)

	c := RowChecksum([]string{"1", "bob"})
	assert.NotEqual(t, a, c)
}

func TestSegmentChecksumXORComposition(t *testing.T) {
	rows := [][]string{
		{"1", "alice"},
		{"2", "bob"},
		{"3", "carol"},
		{"4", "dave"},
	}

	whole := SegmentChecksum(rows)
	left := SegmentChecksum(rows[:2])
	right := SegmentChecksum(rows[2:])

	assert.Equal(t, whole, left.Compose(right), "splitting a segment and XOR-composing children must recover the parent checksum")
}

func TestSegmentChecksumOrderIndependent(t *testing.T) {
	rows := [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}
	reversed := [][]string{{"3", "c"}, {"1", "a"}, {"2", "b"}}

	assert.Equal(t, SegmentChecksum(rows), SegmentChecksum(reversed))
}

func TestFieldSeparatorAvoidsConcatenationCollision(t *testing.T) {
	a := RowChecksum([]string{"ab", "c"})
	b := RowChecksum([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
}

// RowChecksum must truncate the MD5 digest to the same 15 hex digits (60
// bits) every native dialect adapter truncates to before reducing modulo
// Checksum64Prime, or a cross-database HashDiff never trusts a checksum
// match and a dialect with Capabilities.NativeChecksum == false (sqlite)
// never agrees with one that has it.
func TestRowChecksumMatchesFifteenHexDigitTruncation(t *testing.T) {
	fields := []string{"1", "alice"}
	sum := md5.Sum([]byte(strings.Join(fields, FieldSeparator)))
	hexDigest := hex.EncodeToString(sum[:])

	n := new(big.Int)
	n.SetString(hexDigest[:15], 16)
	n.Mod(n, big.NewInt(Checksum64Prime))
	want := Checksum(n.Int64())

	assert.Equal(t, want, RowChecksum(fields))
}
