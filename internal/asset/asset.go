// Package asset encodes wallet positions as Hyperdrive asset IDs: a 256-bit
// word holding an 8-bit prefix above a 248-bit timestamp.
package asset

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Prefix identifies the position kind.
type Prefix uint8

// Supported prefixes.
const (
	LP Prefix = iota
	Long
	Short
	WithdrawalShare
)

var prefixNames = map[Prefix]string{
	LP:              "LP",
	Long:            "LONG",
	Short:           "SHORT",
	WithdrawalShare: "WITHDRAWAL_SHARE",
}

func (p Prefix) String() string {
	if n, ok := prefixNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PREFIX(%d)", uint8(p))
}

const prefixShift = 248

// nameRegex matches LP or {PREFIX}-{timestamp}, e.g. LONG-1700000000.
var nameRegex = regexp.MustCompile(`^(LP|LONG|SHORT|WITHDRAWAL_SHARE)(?:-(\d+))?$`)

var (
	ErrInvalidAssetID = errors.New("asset: invalid asset id")
	ErrInvalidName    = errors.New("asset: invalid asset name")
)

var timestampMask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), prefixShift), uint256.NewInt(1))

// Asset is a decoded asset ID.
type Asset struct {
	Prefix    Prefix `json:"prefix"`
	Timestamp int64  `json:"timestamp"`
}

// Encode packs prefix and timestamp. The LP asset ignores ts.
func Encode(p Prefix, ts int64) (*uint256.Int, error) {
	if _, ok := prefixNames[p]; !ok {
		return nil, errors.Wrapf(ErrInvalidAssetID, "unknown prefix %d", p)
	}
	if p == LP {
		ts = 0
	}
	if ts < 0 {
		return nil, errors.Wrapf(ErrInvalidAssetID, "negative timestamp %d", ts)
	}
	id := new(uint256.Int).Lsh(uint256.NewInt(uint64(p)), prefixShift)
	return id.Or(id, uint256.NewInt(uint64(ts))), nil
}

// Decode unpacks id.
func Decode(id *uint256.Int) (Asset, error) {
	if id == nil {
		return Asset{}, errors.Wrap(ErrInvalidAssetID, "nil id")
	}
	p := Prefix(new(uint256.Int).Rsh(id, prefixShift).Uint64())
	if _, ok := prefixNames[p]; !ok {
		return Asset{}, errors.Wrapf(ErrInvalidAssetID, "unknown prefix %d", p)
	}
	ts := new(uint256.Int).And(id, timestampMask)
	if !ts.IsUint64() || ts.Uint64() > math.MaxInt64 {
		return Asset{}, errors.Wrapf(ErrInvalidAssetID, "timestamp %s out of range", ts.Dec())
	}
	return Asset{Prefix: p, Timestamp: int64(ts.Uint64())}, nil
}

// ID is the encoded form of a.
func (a Asset) ID() (*uint256.Int, error) { return Encode(a.Prefix, a.Timestamp) }

// Name renders a as LP or PREFIX-timestamp.
func (a Asset) Name() string {
	if a.Prefix == LP {
		return a.Prefix.String()
	}
	return a.Prefix.String() + "-" + strconv.FormatInt(a.Timestamp, 10)
}

func (a Asset) String() string { return a.Name() }

// ParseName is the inverse of Name.
func ParseName(name string) (Asset, error) {
	m := nameRegex.FindStringSubmatch(name)
	if m == nil {
		return Asset{}, errors.Wrapf(ErrInvalidName, "%q (expected LP or {LONG|SHORT|WITHDRAWAL_SHARE}-{timestamp})", name)
	}
	var p Prefix
	for k, v := range prefixNames {
		if v == m[1] {
			p = k
		}
	}
	if p == LP {
		if m[2] != "" {
			return Asset{}, errors.Wrapf(ErrInvalidName, "%q: LP takes no timestamp", name)
		}
		return Asset{Prefix: LP}, nil
	}
	if m[2] == "" {
		return Asset{}, errors.Wrapf(ErrInvalidName, "%q: missing timestamp", name)
	}
	ts, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Asset{}, errors.Wrapf(ErrInvalidName, "%q: %v", name, err)
	}
	return Asset{Prefix: p, Timestamp: ts}, nil
}

// FormatHex renders id as a 0x-prefixed, 64-digit hex word.
func FormatHex(id *uint256.Int) string {
	b := id.Bytes32()
	return fmt.Sprintf("0x%x", b[:])
}

// ParseHex reads a 0x-prefixed hex word. Leading zeros are accepted.
func ParseHex(s string) (*uint256.Int, error) {
	digits, ok := strings.CutPrefix(strings.ToLower(s), "0x")
	if !ok || digits == "" {
		return nil, errors.Wrapf(ErrInvalidAssetID, "%q is not 0x-prefixed hex", s)
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	id, err := uint256.FromHex("0x" + digits)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAssetID, "%q: %v", s, err)
	}
	return id, nil
}

// Positions lists the asset of every open cohort, longs before shorts.
func Positions(longs, shorts []int64, hasLP bool) []Asset {
	out := make([]Asset, 0, len(longs)+len(shorts)+1)
	if hasLP {
		out = append(out, Asset{Prefix: LP})
	}
	for _, ts := range longs {
		out = append(out, Asset{Prefix: Long, Timestamp: ts})
	}
	for _, ts := range shorts {
		out = append(out, Asset{Prefix: Short, Timestamp: ts})
	}
	return out
}
