package grading

import (
	"math"
	"strings"
	"testing"

	"github.com/correctme/examgrader/internal/model"
)

func numericKey(value, tolerance float64) model.Value {
	return model.Map(model.E("value", model.Number(value)), model.E("tolerance", model.Number(tolerance)))
}

func TestGradeLeaf(t *testing.T) {
	tests := []struct {
		name      string
		qtype     model.QuestionType
		expected  model.Value
		student   model.Value
		points    float64
		allowNear bool
		want      float64
	}{
		// text
		{"text exact after normalization", model.TypeText, model.String("Paris"), model.String("  paris "), 1, false, 1},
		{"text mismatch", model.TypeText, model.String("Paris"), model.String("London"), 1, false, 0},
		{"text near miss without flag", model.TypeText, model.String("photosynthesis"), model.String("photosynthesys"), 1, false, 0},
		{"text near miss with flag", model.TypeText, model.String("photosynthesis"), model.String("photosynthesys"), 1, true, 0.5},
		{"text far miss with flag", model.TypeText, model.String("paris"), model.String("parix"), 1, true, 0},
		{"text accepts any variant", model.TypeShortText, model.Strings("colour", "color"), model.String("Color"), 0.5, false, 0.5},
		{"text near any variant", model.TypeShortText, model.Strings("mitochondria", "mitochondrion"), model.String("mitochondrian"), 1, true, 0.5},
		{"text null student", model.TypeText, model.String("x"), model.Null(), 1, true, 0},

		// mcq_single
		{"mcq case-insensitive", model.TypeMCQSingle, model.String("b"), model.String("B"), 1, false, 1},
		{"mcq extra text is wrong", model.TypeMCQSingle, model.String("b"), model.String("B - something"), 1, true, 0},
		{"mcq full option text", model.TypeMCQSingle, model.String("b - something"), model.String("B -  Something"), 1, false, 1},

		// true_false
		{"tf true", model.TypeTrueFalse, model.String("true"), model.String("True"), 1, false, 1},
		{"tf bool key", model.TypeTrueFalse, model.Bool(false), model.String("FALSE"), 1, false, 1},
		{"tf wrong", model.TypeTrueFalse, model.String("true"), model.String("false"), 1, false, 0},
		{"tf ambiguous", model.TypeTrueFalse, model.String("true"), model.String("vrai"), 1, false, 0},
		{"tf ambiguous key", model.TypeTrueFalse, model.String("yes"), model.String("yes"), 1, false, 0},

		// numeric
		{"numeric within tolerance", model.TypeNumeric, numericKey(5, 0.1), model.String("5.05"), 1, false, 1},
		{"numeric on the edge", model.TypeNumeric, numericKey(5, 0.5), model.String("5.5"), 1, false, 1},
		{"numeric outside tolerance", model.TypeNumeric, numericKey(5, 0.1), model.String("5.2"), 1, false, 0},
		{"numeric with unit", model.TypeNumeric, numericKey(9.81, 0.01), model.String("g = 9.81 m/s2"), 1, false, 1},
		{"numeric bare expected", model.TypeNumeric, model.Number(12), model.Number(12), 0.25, false, 0.25},
		{"numeric string expected", model.TypeNumeric, model.String("12"), model.String("12.0"), 1, false, 1},
		{"numeric value set", model.TypeNumeric, model.Map(
			model.E("values", model.Seq(model.Number(2), model.Number(-2))),
			model.E("tolerance", model.Number(0)),
		), model.String("-2"), 1, false, 1},
		{"numeric value set miss", model.TypeNumeric, model.Map(
			model.E("values", model.Seq(model.Number(2), model.Number(-2))),
		), model.String("3"), 1, false, 0},
		{"numeric non-numeric student", model.TypeNumeric, numericKey(5, 0.1), model.String("five"), 1, false, 0},
		{"numeric malformed tolerance", model.TypeNumeric, model.Map(
			model.E("value", model.Number(5)), model.E("tolerance", model.String("wide")),
		), model.String("5"), 1, false, 0},
		{"numeric malformed value", model.TypeNumeric, model.Map(
			model.E("value", model.String("five")),
		), model.String("5"), 1, false, 0},
		{"numeric no target", model.TypeNumeric, model.Map(model.E("tolerance", model.Number(1))), model.String("5"), 1, false, 0},

		// regex
		{"regex full match ignoring case", model.TypeRegex, model.String(`h2o|water`), model.String("H2O"), 1, false, 1},
		{"regex partial is not enough", model.TypeRegex, model.String(`h2o`), model.String("h2o!"), 1, false, 0},
		{"regex uses raw text", model.TypeRegex, model.String(`a b`), model.String("a  b"), 1, false, 0},
		{"regex invalid pattern", model.TypeRegex, model.String(`(unclosed`), model.String("(unclosed"), 1, false, 0},
		{"regex unbalanced close", model.TypeRegex, model.String(`a)(b`), model.String("ab"), 1, false, 0},

		// fallback
		{"unknown type exact", model.QuestionType("essay"), model.String("Yes"), model.String("yes"), 1, false, 1},
		{"unknown type no near", model.QuestionType("essay"), model.String("photosynthesis"), model.String("photosynthesys"), 1, true, 0},

		// bounds
		{"zero points", model.TypeText, model.String("a"), model.String("a"), 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeLeaf(tt.qtype, tt.expected, tt.student, tt.points, tt.allowNear)
			if got != tt.want {
				t.Errorf("GradeLeaf() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > tt.points {
				t.Errorf("GradeLeaf() = %v outside [0, %v]", got, tt.points)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "xyz", 0},
		{"paris", "parix", 0.8},
		{"photosynthesys", "photosynthesis", 26.0 / 28.0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestGradeLeafSkipsSimilarityUnlessNeeded(t *testing.T) {
	calls := 0
	orig := similarity
	similarity = func(a, b string) float64 {
		calls++
		return orig(a, b)
	}
	t.Cleanup(func() { similarity = orig })

	long := model.String(strings.Repeat("paris ", 1<<16))
	tests := []struct {
		name      string
		student   model.Value
		allowNear bool
		want      float64
		wantCalls int
	}{
		{"strict mismatch", long, false, 0, 0},
		{"exact with near allowed", model.String("Paris"), true, 1, 0},
		{"near allowed and needed", model.String("parix"), true, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = 0
			got := GradeLeaf(model.TypeText, model.String("paris"), tt.student, 1, tt.allowNear)
			if got != tt.want || calls != tt.wantCalls {
				t.Errorf("got %v with %d ratio computations, want %v with %d", got, calls, tt.want, tt.wantCalls)
			}
		})
	}
}
