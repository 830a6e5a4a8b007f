package grading

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/correctme/examgrader/internal/model"
)

var numberRe = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

// Normalize canonicalizes a value for text comparison: composites are
// flattened (mapping values in sorted key order, sequences in order),
// whitespace runs collapse to one space, the result is trimmed and lower-cased.
func Normalize(v model.Value) string {
	return normalizeText(v.Text())
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ExtractNumber returns the first signed decimal (optionally with exponent)
// found in the value's text. JSON numbers are returned as is. The boolean is
// false when the value holds no number.
func ExtractNumber(v model.Value) (float64, bool) {
	if v.IsNumber() {
		return v.Float()
	}
	m := numberRe.FindString(v.Text())
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}
