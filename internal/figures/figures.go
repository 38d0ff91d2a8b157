// Package figures interprets the display strings used for reported numbers:
// "$70,236", "~50%", "1.2 million", "Meets standards". Parsing is total; text
// that is not a number yields no value instead of an error.
package figures

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var plainNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var wordScales = []struct {
	word  string
	scale float64
}{
	{"thousand", 1e3},
	{"million", 1e6},
	{"billion", 1e9},
	{"trillion", 1e12},
}

var letterScales = map[byte]float64{
	'k': 1e3,
	'm': 1e6,
	'b': 1e9,
	't': 1e12,
}

var folder = cases.Fold()

// ParseNumeric derives a number from a display value. Currency symbols,
// thousands separators, whitespace, approximation markers and a trailing
// percent sign are ignored; a magnitude suffix (K/M/B/T or the spelled-out
// word) scales the result. It returns nil when nothing numeric remains.
func ParseNumeric(value string) *float64 {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(value)))
	if s == "" {
		return nil
	}
	s = strings.TrimPrefix(s, "approx.")
	s = strings.TrimPrefix(s, "approximately")

	scale := 1.0
	for _, ws := range wordScales {
		if rest, ok := strings.CutSuffix(s, ws.word); ok {
			scale = ws.scale
			s = rest
			break
		}
	}

	var b strings.Builder
	for _, r := range s {
		switch r {
		case '$', '€', '£', '¥', ',', '~', '%', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()
	if s == "" {
		return nil
	}
	if scale == 1 {
		if f, ok := letterScales[s[len(s)-1]]; ok {
			scale = f
			s = s[:len(s)-1]
		}
	}
	if !plainNumber.MatchString(s) {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n *= scale
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return nil
	}
	return &n
}

// Fold returns the comparison key for non-numeric figures.
func Fold(value string) string {
	return folder.String(norm.NFC.String(strings.Join(strings.Fields(value), " ")))
}

// Diverge reports whether two reported figures disagree. Both must be present.
// Numeric figures compare by value, anything else by folded text, so
// "$1,000" and "1000" agree while "Meets standards" and "meets  standards" do too.
func Diverge(government, independent string) bool {
	government = strings.TrimSpace(government)
	independent = strings.TrimSpace(independent)
	if government == "" || independent == "" {
		return false
	}
	g, i := ParseNumeric(government), ParseNumeric(independent)
	if g != nil && i != nil {
		return *g != *i
	}
	return Fold(government) != Fold(independent)
}

// Ratio is the larger figure divided by the smaller, in absolute terms.
// ok is false when either side is not numeric. A zero against a non-zero
// figure yields +Inf.
func Ratio(a, b string) (ratio float64, ok bool) {
	x, y := ParseNumeric(a), ParseNumeric(b)
	if x == nil || y == nil {
		return 0, false
	}
	lo, hi := math.Abs(*x), math.Abs(*y)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1, true
	}
	if lo == 0 {
		return math.Inf(1), true
	}
	return hi / lo, true
}
