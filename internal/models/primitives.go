package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// GridSize is the width of the land grid; a location index is x*GridSize + y.
const GridSize = 64

// Location is the 16-bit index of a land tile on the grid.
type Location uint16

// LocationFromXY builds the index of the tile at (x, y).
func LocationFromXY(x, y uint16) Location {
	return Location(x*GridSize + y)
}

func (l Location) X() uint16 { return uint16(l) / GridSize }
func (l Location) Y() uint16 { return uint16(l) % GridSize }

func (l Location) String() string {
	return fmt.Sprintf("(%d, %d)", l.X(), l.Y())
}

// U256 is an unsigned 256-bit integer used for prices and stake amounts.
type U256 struct {
	v uint256.Int
}

// NewU256 wraps a uint64.
func NewU256(n uint64) U256 {
	var u U256
	u.v.SetUint64(n)
	return u
}

// ParseU256 accepts "0x" prefixed hex or a decimal string.
func ParseU256(s string) (U256, error) {
	var u U256
	s = strings.TrimSpace(s)
	if s == "" {
		return u, fmt.Errorf("empty value")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			return u, nil
		}
		if len(digits) > 64 {
			return u, fmt.Errorf("%q overflows 256 bits", s)
		}
		if err := u.v.SetFromHex("0x" + digits); err != nil {
			return u, fmt.Errorf("invalid hex %q: %w", s, err)
		}
		return u, nil
	}
	if err := u.v.SetFromDecimal(s); err != nil {
		return u, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return u, nil
}

// MustU256 is ParseU256 for constants and tests.
func MustU256(s string) U256 {
	u, err := ParseU256(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u U256) String() string { return u.v.Dec() }
func (u U256) Hex() string    { return u.v.Hex() }
func (u U256) IsUint64() bool { return u.v.IsUint64() }
func (u U256) Uint64() uint64 { return u.v.Uint64() }

// MarshalJSON encodes the value as a decimal string so JSON consumers never
// lose precision.
func (u U256) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.v.Dec())
}

func (u *U256) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("u256: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseU256(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Address is a felt rendered as lowercase 0x hex without leading zeros.
type Address string

// ParseAddress normalizes a hex or decimal felt.
func ParseAddress(s string) (Address, error) {
	u, err := ParseU256(s)
	if err != nil {
		return "", err
	}
	return Address(u.Hex()), nil
}

func (a Address) String() string { return string(a) }

// Level of a land tile.
type Level uint8

const (
	LevelZero Level = iota
	LevelFirst
	LevelSecond
)

var levelNames = map[Level]string{
	LevelZero:   "Zero",
	LevelFirst:  "First",
	LevelSecond: "Second",
}

// ParseLevel maps a variant name to a Level.
func ParseLevel(name string) (Level, error) {
	for lvl, n := range levelNames {
		if n == name {
			return lvl, nil
		}
	}
	return 0, fmt.Errorf("unknown level variant %q", name)
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}
