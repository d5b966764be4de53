package core

import (
	"crypto/md5"
	"encoding/hex"
	"math/big"
	"strings"
)

// Checksum64Prime is the modulus every dialect adapter reduces its
// hex-digest-derived big integer by before casting to a signed 64-bit
// column. It is chosen to fit comfortably under math.MaxInt64 so every
// dialect's CAST(... AS BIGINT)/CAST(... AS SIGNED) agrees bit-for-bit.
const Checksum64Prime = int64(1<<61 - 1) // 2^61 - 1, a Mersenne prime

// FieldSeparator delimits canonicalised column values before hashing, so
// that ("ab","c") and ("a","bc") never collide on concatenation alone.
const FieldSeparator = "|"

// Checksum is an order-independent, XOR-composable aggregate over a set of
// rows: Checksum(A ∪ B) == Checksum(A) ^ Checksum(B) for disjoint A, B.
type Checksum int64

// Compose XORs two checksums, the same operation every adapter's
// aggregate (BIT_XOR or equivalent) performs in SQL.
func (c Checksum) Compose(other Checksum) Checksum { return c ^ other }

// checksumHexDigits is how many leading hex digits of the MD5 digest feed
// the modulus reduction, matching every dialect adapter's truncation
// width (60 bits) so a Go-computed checksum (the only path for dialects
// with Capabilities.NativeChecksum == false) agrees bit-for-bit with a
// native one computed over the same canonicalised input.
const checksumHexDigits = 15

// RowChecksum hashes a single row's canonicalised field values the same
// way every dialect's render_checksum expression does: MD5 the
// separator-joined canonical fields, truncate the hex digest to
// checksumHexDigits, parse as a big integer, reduce modulo
// Checksum64Prime. It exists so the Go side can verify the
// XOR-composition property and cross-check a downloaded segment's
// checksum without round-tripping through SQL.
func RowChecksum(canonicalFields []string) Checksum {
	sum := md5.Sum([]byte(strings.Join(canonicalFields, FieldSeparator)))
	hexDigest := hex.EncodeToString(sum[:])[:checksumHexDigits]
	n := new(big.Int)
	n.SetString(hexDigest, 16)
	mod := big.NewInt(Checksum64Prime)
	n.Mod(n, mod)
	return Checksum(n.Int64())
}

// SegmentChecksum XOR-aggregates the per-row checksums of a segment. It is
// the Go-side mirror of the BIT_XOR(...) aggregate every dialect's
// count_and_checksum() query performs server-side.
func SegmentChecksum(rows [][]string) Checksum {
	var total Checksum
	for _, fields := range rows {
		total = total.Compose(RowChecksum(fields))
	}
	return total
}
