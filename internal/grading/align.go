package grading

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/correctme/examgrader/internal/model"
)

var (
	answerSplitRe = regexp.MustCompile(`[,;|\n/]+`)
	keyHeadRe     = regexp.MustCompile(`^(?:([a-zA-Z]+)|(\d+))`)
)

// Pick selects the part of a student's raw answer that belongs to the
// subpart at index (0-based) with the given id. A mapping answer is looked
// up by id, then by 1-based position; anything else is coerced to a list
// and indexed. Missing parts are null.
func Pick(answer model.Value, index int, id string) model.Value {
	if answer.Kind() == model.KindMapping {
		if v, ok := answer.Get(id); ok {
			return v
		}
		if v, ok := answer.Get(strconv.Itoa(index + 1)); ok {
			return v
		}
	}
	parts := AsList(answer)
	if index < 0 || index >= len(parts) {
		return model.Null()
	}
	return parts[index]
}

// AsList coerces a raw answer into an ordered list: sequences as is,
// mappings as their values in natural key order, scalars split on
// , ; | / and newlines with blank pieces dropped.
func AsList(v model.Value) []model.Value {
	switch v.Kind() {
	case model.KindSequence:
		return v.Items()
	case model.KindMapping:
		keys := append([]string(nil), v.Keys()...)
		sort.SliceStable(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
		out := make([]model.Value, 0, len(keys))
		for _, k := range keys {
			f, _ := v.Get(k)
			out = append(out, f)
		}
		return out
	case model.KindScalar:
		s, _ := v.Scalar()
		var out []model.Value
		for _, p := range answerSplitRe.Split(s, -1) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, model.String(p))
			}
		}
		return out
	default:
		return nil
	}
}

// naturalKey ranks keys by their leading run: letters first (compared as
// text), then digits (compared numerically), then everything else.
type naturalKey struct {
	group int
	head  string
}

func keyOf(k string) naturalKey {
	m := keyHeadRe.FindStringSubmatch(k)
	switch {
	case m == nil:
		return naturalKey{group: 2, head: k}
	case m[1] != "":
		return naturalKey{group: 0, head: m[1]}
	default:
		return naturalKey{group: 1, head: strings.TrimLeft(m[2], "0")}
	}
}

func naturalLess(a, b string) bool {
	ka, kb := keyOf(a), keyOf(b)
	if ka.group != kb.group {
		return ka.group < kb.group
	}
	if ka.group == 1 && len(ka.head) != len(kb.head) {
		return len(ka.head) < len(kb.head)
	}
	return ka.head < kb.head
}
