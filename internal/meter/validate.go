package meter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jgoulah/flowmeter/pkg/models"
)

var textPattern = regexp.MustCompile(`^(-?)(\d+)(?:\.(\d+))?$`)

// FormatError reports a reading that does not fit the meter display
type FormatError struct {
	Kind   models.Kind
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s reading %s: %s", e.Kind, e.Input, e.Reason)
}

// RangeError reports a negative reading or one below the previous reading
type RangeError struct {
	Kind     models.Kind
	Value    float64
	Previous float64
	Reason   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid %s reading %s: %s", e.Kind, strconv.FormatFloat(e.Value, 'f', -1, 64), e.Reason)
}

func decimalsReason(kind models.Kind) string {
	if kind.Decimals() == 1 {
		return "must have exactly 1 decimal place"
	}
	return fmt.Sprintf("must have exactly %d decimal places", kind.Decimals())
}

func widthReason(kind models.Kind) string {
	return fmt.Sprintf("must have %d digits in total (%d before the decimal point)", kind.TotalDigits(), kind.IntegerDigits())
}

// Validate checks a value against the display format of the kind.
//
// The value may not carry more fractional digits than the display shows; it
// is never rounded. The integer part is zero-padded to the display width, so
// 12345.6 is the electricity display 012345.6, while 1234567.0 does not fit.
func Validate(kind models.Kind, v float64) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown meter kind %d", int(kind))
	}

	input := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &FormatError{Kind: kind, Input: input, Reason: "not a finite number"}
	}
	if v < 0 {
		return &RangeError{Kind: kind, Value: v, Reason: "must not be negative"}
	}

	intPart, frac, _ := strings.Cut(input, ".")
	if len(frac) > kind.Decimals() {
		return &FormatError{Kind: kind, Input: input, Reason: decimalsReason(kind)}
	}
	if len(intPart) > kind.IntegerDigits() {
		return &FormatError{Kind: kind, Input: input, Reason: widthReason(kind)}
	}
	return nil
}

// ParseText parses a reading as typed on the meter display.
//
// The text must carry exactly the kind's number of fractional digits. Leading
// zeros count as written, and the integer part may not exceed the display.
func ParseText(kind models.Kind, s string) (float64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown meter kind %d", int(kind))
	}

	s = strings.TrimSpace(s)
	m := textPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &FormatError{Kind: kind, Input: s, Reason: "not a decimal number"}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FormatError{Kind: kind, Input: s, Reason: "not a decimal number"}
	}
	if m[1] == "-" {
		return 0, &RangeError{Kind: kind, Value: v, Reason: "must not be negative"}
	}
	if len(m[3]) != kind.Decimals() {
		return 0, &FormatError{Kind: kind, Input: s, Reason: decimalsReason(kind)}
	}
	if len(m[2]) > kind.IntegerDigits() {
		return 0, &FormatError{Kind: kind, Input: s, Reason: widthReason(kind)}
	}
	return v, nil
}

// CheckMonotonic rejects a value below the previous reading
func CheckMonotonic(kind models.Kind, v, previous float64) error {
	if v < previous {
		return &RangeError{
			Kind:     kind,
			Value:    v,
			Previous: previous,
			Reason:   "must not be below the previous reading " + Format(kind, previous),
		}
	}
	return nil
}

// Format renders a value the way the meter displays it, e.g. 012345.6
func Format(kind models.Kind, v float64) string {
	width := kind.TotalDigits()
	if kind.Decimals() > 0 {
		width++
	}
	return fmt.Sprintf("%0*.*f", width, kind.Decimals(), v)
}

// Digits splits a value into the individual display digits
func Digits(kind models.Kind, v float64) []int {
	s := strings.Replace(Format(kind, v), ".", "", 1)
	digits := make([]int, 0, len(s))
	for _, r := range s {
		digits = append(digits, int(r-'0'))
	}
	return digits
}
