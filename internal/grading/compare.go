package grading

import (
	"math"
	"regexp"
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/correctme/examgrader/internal/model"
)

// nearMissThreshold is the minimum similarity ratio for half credit.
const nearMissThreshold = 0.92

// GradeLeaf compares one expected value with one submitted value under the
// rule for qtype and returns the points awarded, always within [0, points].
// Malformed expected values never fail: they award nothing.
func GradeLeaf(qtype model.QuestionType, expected, student model.Value, points float64, allowNear bool) float64 {
	var awarded float64
	studentNorm := Normalize(student)

	switch qtype {
	case model.TypeText, model.TypeShortText:
		variants := []model.Value{expected}
		if expected.Kind() == model.KindSequence {
			variants = expected.Items()
		}
		norms := make([]string, len(variants))
		for i, x := range variants {
			norms[i] = Normalize(x)
		}
		switch {
		case slices.Contains(norms, studentNorm):
			awarded = points
		case allowNear && slices.ContainsFunc(norms, func(xn string) bool {
			return similarity(studentNorm, xn) >= nearMissThreshold
		}):
			awarded = points * 0.5
		}

	case model.TypeMCQSingle:
		if Normalize(expected) == studentNorm {
			awarded = points
		}

	case model.TypeTrueFalse:
		if (studentNorm == "true" || studentNorm == "false") && studentNorm == Normalize(expected) {
			awarded = points
		}

	case model.TypeNumeric:
		if numericMatch(expected, student) {
			awarded = points
		}

	case model.TypeRegex:
		if regexMatch(expected.Text(), student.Text()) {
			awarded = points
		}

	default:
		if Normalize(expected) == studentNorm {
			awarded = points
		}
	}

	return math.Max(0, math.Min(points, awarded))
}

// similarity is swapped in tests to observe when the ratio is computed.
var similarity = Similarity

// Similarity returns the character-level matching ratio of a and b, in [0, 1].
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(splitChars(a), splitChars(b)).Ratio()
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// numericMatch accepts {value, tolerance}, {values: [...], tolerance} or a
// bare number as the expected value.
func numericMatch(expected, student model.Value) bool {
	if expected.Kind() != model.KindMapping {
		expected = model.Map(model.E("value", expected))
	}

	tolerance := 0.0
	if t, ok := expected.Get("tolerance"); ok {
		f, ok := t.Float()
		if !ok {
			return false
		}
		tolerance = f
	}

	got, ok := ExtractNumber(student)
	if !ok {
		return false
	}

	if v, ok := expected.Get("value"); ok {
		want, ok := v.Float()
		return ok && math.Abs(got-want) <= tolerance
	}

	targets, _ := expected.Get("values")
	candidates := targets.Items()
	if targets.Kind() == model.KindScalar {
		candidates = []model.Value{targets}
	}
	for _, c := range candidates {
		if want, ok := c.Float(); ok && math.Abs(got-want) <= tolerance {
			return true
		}
	}
	return false
}

// regexMatch reports whether the whole of s matches pattern, ignoring case.
// Patterns that do not compile never match.
func regexMatch(pattern, s string) bool {
	if _, err := regexp.Compile(pattern); err != nil {
		return false
	}
	re, err := regexp.Compile(`(?i)^(?:` + pattern + `)$`)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
