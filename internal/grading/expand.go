package grading

import (
	"math"
	"strings"

	"github.com/correctme/examgrader/internal/model"
)

// allowedSteps are the only point denominations a subpart may carry.
var allowedSteps = [...]float64{1.0, 0.5, 0.25}

// NearestAllowedStep snaps x to the closest allowed step. Ties go to the
// larger step; non-positive and NaN inputs snap to 0.
func NearestAllowedStep(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	best := allowedSteps[0]
	for _, s := range allowedSteps[1:] {
		d, bd := math.Abs(s-x), math.Abs(best-x)
		if d < bd || (d == bd && s > best) {
			best = s
		}
	}
	return best
}

// defaultPointsFor returns the per-blank points of a list answer with n blanks.
func defaultPointsFor(n int) float64 {
	switch {
	case n == 1:
		return 1.0
	case n <= 3:
		return 0.5
	default:
		return 0.25
	}
}

func snapPoints(v model.Value) float64 {
	f, ok := v.Float()
	if !ok {
		return 0
	}
	return NearestAllowedStep(f)
}

// subpartLetter returns a, b, ..., z, aa, ab, ... for index 0, 1, ...
func subpartLetter(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('a' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

// Expand turns one answer-key item into its ordered subparts and returns
// them with their point total. Explicit subparts win; otherwise a list
// expected_answer yields one subpart per element with count-based default
// points; otherwise the item is a single one-point subpart.
func Expand(item model.AnswerKeyItem) ([]model.Subpart, float64) {
	qtype := item.Type.OrDefault()

	var out []model.Subpart
	switch {
	case len(item.Subparts) > 0:
		out = make([]model.Subpart, 0, len(item.Subparts))
		for i, sp := range item.Subparts {
			id := strings.TrimSpace(string(sp.ID))
			if id == "" {
				id = subpartLetter(i)
			}
			stype := sp.Type
			if stype == "" {
				stype = qtype
			}
			exp := sp.Expected
			if exp.IsNull() {
				exp = sp.Answer
			}
			out = append(out, model.Subpart{ID: id, Type: stype, Expected: exp, Points: snapPoints(sp.Points)})
		}

	case item.ExpectedAnswer.Kind() == model.KindSequence && item.ExpectedAnswer.Len() > 0:
		elems := item.ExpectedAnswer.Items()
		perBlank := defaultPointsFor(len(elems))
		out = make([]model.Subpart, 0, len(elems))
		for i, el := range elems {
			sp := model.Subpart{ID: subpartLetter(i), Type: qtype, Expected: el, Points: perBlank}
			if isOverride(el) {
				sp.Expected = overrideExpected(el)
				if t, ok := el.Get("type"); ok {
					if s, ok := t.Scalar(); ok && s != "" {
						sp.Type = model.QuestionType(s)
					}
				}
				if p, ok := el.Get("points"); ok {
					sp.Points = snapPoints(p)
				}
			}
			out = append(out, sp)
		}

	default:
		out = []model.Subpart{{ID: "a", Type: qtype, Expected: item.ExpectedAnswer, Points: 1.0}}
	}

	var total float64
	for _, sp := range out {
		total += sp.Points
	}
	return out, total
}

// isOverride reports whether a list element is a per-blank override record
// rather than a bare expected value such as {"value": 5, "tolerance": 0.1}.
func isOverride(el model.Value) bool {
	if el.Kind() != model.KindMapping {
		return false
	}
	for _, k := range [...]string{"type", "expected", "answer", "points"} {
		if el.Has(k) {
			return true
		}
	}
	return false
}

func overrideExpected(el model.Value) model.Value {
	if e, ok := el.Get("expected"); ok {
		return e
	}
	e, _ := el.Get("answer")
	return e
}
