package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAnswerValue(t *testing.T) {
	tests := []struct {
		name    string
		qt      QuestionType
		raw     string
		wantNil bool
		wantErr bool
		check   func(t *testing.T, v *AnswerValue)
	}{
		{name: "null clears", qt: SingleChoice, raw: `null`, wantNil: true},
		{name: "empty clears", qt: MultiSelect, raw: ``, wantNil: true},
		{name: "blank option clears", qt: SingleChoice, raw: `"  "`, wantNil: true},
		{name: "empty selection clears", qt: MultiSelect, raw: `[]`, wantNil: true},
		{name: "blank text clears", qt: ShortText, raw: `" "`, wantNil: true},
		{
			name: "single choice",
			qt:   SingleChoice,
			raw:  `"opt-1"`,
			check: func(t *testing.T, v *AnswerValue) {
				if v.Choice != "opt-1" || v.Kind != SingleChoice {
					t.Fatalf("got %+v", v)
				}
			},
		},
		{
			name: "true false accepts a bool",
			qt:   TrueFalse,
			raw:  `true`,
			check: func(t *testing.T, v *AnswerValue) {
				if v.Choice != "true" {
					t.Fatalf("choice = %q, want true", v.Choice)
				}
			},
		},
		{name: "single choice rejects a bool", qt: SingleChoice, raw: `true`, wantErr: true},
		{
			name: "multi select",
			qt:   MultiSelect,
			raw:  `["a","b"]`,
			check: func(t *testing.T, v *AnswerValue) {
				if len(v.Choices) != 2 {
					t.Fatalf("choices = %v", v.Choices)
				}
			},
		},
		{name: "multi select rejects a scalar", qt: MultiSelect, raw: `"a"`, wantErr: true},
		{
			name: "numeric",
			qt:   Numeric,
			raw:  `2.5`,
			check: func(t *testing.T, v *AnswerValue) {
				if v.Number == nil || *v.Number != 2.5 {
					t.Fatalf("number = %v", v.Number)
				}
			},
		},
		{
			name: "numeric as string",
			qt:   Numeric,
			raw:  `" 42 "`,
			check: func(t *testing.T, v *AnswerValue) {
				if v.Number == nil || *v.Number != 42 {
					t.Fatalf("number = %v", v.Number)
				}
			},
		},
		{name: "numeric garbage", qt: Numeric, raw: `"forty"`, wantErr: true},
		{name: "text rejects an array", qt: ShortText, raw: `["x"]`, wantErr: true},
		{name: "unknown type", qt: "essay", raw: `"x"`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseAnswerValue(tc.qt, json.RawMessage(tc.raw))
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidAnswer) {
					t.Fatalf("err = %v, want ErrInvalidAnswer", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil {
				if v != nil {
					t.Fatalf("got %+v, want nil", v)
				}
				return
			}
			if v == nil {
				t.Fatal("got nil value")
			}
			tc.check(t, v)
		})
	}
}

func TestAnswerValue_ScanRestoresValue(t *testing.T) {
	n := 7.25
	in := AnswerValue{Kind: Numeric, Number: &n}
	stored, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var out AnswerValue
	if err := out.Scan([]byte(stored.(string))); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if out.Kind != Numeric || out.Number == nil || *out.Number != n {
		t.Fatalf("scanned %+v", out)
	}
	if out.Plain() != 7.25 {
		t.Fatalf("plain = %v", out.Plain())
	}

	if err := out.Scan(42); err == nil {
		t.Fatal("expected an error for an int source")
	}
}

func TestAnswerValue_Plain(t *testing.T) {
	var nilValue *AnswerValue
	if nilValue.Plain() != nil {
		t.Fatal("nil value should render as nil")
	}
	multi := &AnswerValue{Kind: MultiSelect, Choices: []string{"a"}}
	if got, ok := multi.Plain().([]string); !ok || len(got) != 1 {
		t.Fatalf("plain = %#v", multi.Plain())
	}
	text := &AnswerValue{Kind: ShortText, Text: "hi"}
	if text.Plain() != "hi" {
		t.Fatalf("plain = %#v", text.Plain())
	}
}

func TestAssignmentIncludes(t *testing.T) {
	sec := "sec-1"
	dept := "dept-1"
	exam := &Exam{
		AssignmentMode: AssignSection,
		Targets: []ExamTarget{
			{Kind: TargetSection, TargetID: "sec-2"},
			{Kind: TargetDepartment, TargetID: "dept-1"},
			{Kind: TargetStudent, TargetID: "stu-9"},
		},
	}
	a := exam.Assignment()

	tests := []struct {
		name    string
		student string
		section *string
		dept    *string
		want    bool
	}{
		{"department listed", "stu-1", &sec, &dept, true},
		{"individually listed", "stu-9", nil, nil, true},
		{"nothing matches", "stu-1", &sec, nil, false},
	}
	for _, tc := range tests {
		if got := a.Includes(tc.student, tc.section, tc.dept); got != tc.want {
			t.Errorf("%s: Includes = %v, want %v", tc.name, got, tc.want)
		}
	}

	everyone := (&Exam{AssignmentMode: AssignAll, Targets: exam.Targets}).Assignment()
	if !everyone.All || !everyone.Includes("anyone", nil, nil) {
		t.Fatal("mode all must include everyone regardless of stale targets")
	}
}
