package models

import (
	"fmt"
	"strings"
)

// Kind identifies a meter type and carries its fixed display format
type Kind int

const (
	Electricity Kind = iota + 1
	Gas
)

// Kinds lists every supported meter kind in display order
var Kinds = []Kind{Electricity, Gas}

// ParseKind resolves a kind from its name ("electricity" or "gas")
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electricity":
		return Electricity, nil
	case "gas":
		return Gas, nil
	default:
		return 0, fmt.Errorf("unknown meter kind: %s (available: electricity, gas)", s)
	}
}

func (k Kind) String() string {
	switch k {
	case Electricity:
		return "electricity"
	case Gas:
		return "gas"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == Electricity || k == Gas
}

// Decimals returns the number of fractional digits on the meter display
func (k Kind) Decimals() int {
	switch k {
	case Electricity:
		return 1
	case Gas:
		return 3
	default:
		return 0
	}
}

// TotalDigits returns the number of digits on the meter display
func (k Kind) TotalDigits() int {
	switch k {
	case Electricity:
		return 7
	case Gas:
		return 8
	default:
		return 0
	}
}

// IntegerDigits returns the number of digits left of the decimal point
func (k Kind) IntegerDigits() int {
	return k.TotalDigits() - k.Decimals()
}

// Table returns the name of the table holding readings of this kind
func (k Kind) Table() string {
	return k.String() + "_readings"
}

// Unit returns the unit the meter counts in
func (k Kind) Unit() string {
	switch k {
	case Electricity:
		return "kWh"
	case Gas:
		return "m³"
	default:
		return ""
	}
}

// Storage layouts for timestamps and contract dates
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)
