package model

import (
	"encoding/json"
	"testing"
)

func TestValueJSONRoundTripKeepsOrderAndNumbers(t *testing.T) {
	in := `{"zeta":1.50,"alpha":[true,null,"x"],"mid":{"b":2,"a":1e3}}`
	v, err := ParseValue([]byte(in))
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("round trip changed document:\n got %s\nwant %s", out, in)
	}
	if keys := v.Keys(); len(keys) != 3 || keys[0] != "zeta" || keys[2] != "mid" {
		t.Errorf("keys = %v", keys)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Kind
		wantErr bool
	}{
		{"empty input", "  ", KindNull, false},
		{"null", "null", KindNull, false},
		{"string", `"hi"`, KindScalar, false},
		{"number", `-2.5`, KindScalar, false},
		{"list", `[1,2]`, KindSequence, false},
		{"object", `{"a":1}`, KindMapping, false},
		{"trailing data", `{"a":1} {}`, KindNull, true},
		{"malformed", `{"a":`, KindNull, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && v.Kind() != tt.want {
				t.Errorf("kind = %s, want %s", v.Kind(), tt.want)
			}
		})
	}
}

func TestValueFloat(t *testing.T) {
	tests := []struct {
		name   string
		in     Value
		want   float64
		wantOK bool
	}{
		{"number", Number(0.1), 0.1, true},
		{"numeric string", String(" 3.5 "), 3.5, true},
		{"bool true", Bool(true), 1, true},
		{"bool false", Bool(false), 0, true},
		{"word", String("wide"), 0, false},
		{"number with unit", String("5 cm"), 0, false},
		{"null", Null(), 0, false},
		{"list", Strings("1"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Float()
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Float() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestValueText(t *testing.T) {
	v := Map(
		E("b", Strings(" two ", "", "three")),
		E("a", String("one")),
		E("c", Null()),
	)
	if got := v.Text(); got != "one two three" {
		t.Errorf("Text() = %q", got)
	}
}

func TestValueEqual(t *testing.T) {
	a := Map(E("x", Number(1)), E("y", String("1")))
	if !a.Equal(Map(E("x", Number(1)), E("y", String("1")))) {
		t.Error("identical mappings should be equal")
	}
	if a.Equal(Map(E("x", String("1")), E("y", String("1")))) {
		t.Error("number and string must differ")
	}
	if a.Equal(Map(E("y", String("1")), E("x", Number(1)))) {
		t.Error("key order is part of equality")
	}
}

func TestLooseString(t *testing.T) {
	var item AnswerKeyItem
	tests := []struct {
		in   string
		want LooseString
	}{
		{`{"question_id":"q1"}`, "q1"},
		{`{"question_id":7}`, "7"},
		{`{"question_id":null}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		item = AnswerKeyItem{}
		if err := json.Unmarshal([]byte(tt.in), &item); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if item.QuestionID != tt.want {
			t.Errorf("Unmarshal(%s) question_id = %q, want %q", tt.in, item.QuestionID, tt.want)
		}
	}
	if err := json.Unmarshal([]byte(`{"question_id":["a"]}`), &item); err == nil {
		t.Error("a list is not an identifier")
	}
}

func TestAnswerKeyItemOmitsEmptyFields(t *testing.T) {
	item := AnswerKeyItem{ExpectedAnswer: String("x")}
	b, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back AnswerKeyItem
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.ExpectedAnswer.Equal(item.ExpectedAnswer) {
		t.Errorf("expected_answer lost in %s", b)
	}
}
