package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidAnswer = errors.New("invalid answer value")

// AnswerValue is a selected answer, shaped by the question type it belongs to:
// an option id for single choice and true/false, a set of option ids for
// multi select, a number for numeric and free text for short text.
type AnswerValue struct {
	Kind    QuestionType `json:"kind"`
	Choice  string       `json:"choice,omitempty"`
	Choices []string     `json:"choices,omitempty"`
	Number  *float64     `json:"number,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// ParseAnswerValue validates a raw client value against the question type.
// A JSON null, an empty selection or blank text yields nil (not answered).
func ParseAnswerValue(qt QuestionType, raw json.RawMessage) (*AnswerValue, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	switch qt {
	case SingleChoice, TrueFalse:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			var b bool
			if qt != TrueFalse || json.Unmarshal(raw, &b) != nil {
				return nil, fmt.Errorf("%w: %s expects an option id", ErrInvalidAnswer, qt)
			}
			s = strconv.FormatBool(b)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return &AnswerValue{Kind: qt, Choice: s}, nil

	case MultiSelect:
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("%w: %s expects an array of option ids", ErrInvalidAnswer, qt)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return &AnswerValue{Kind: qt, Choices: ids}, nil

	case Numeric:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			var s string
			if json.Unmarshal(raw, &s) != nil {
				return nil, fmt.Errorf("%w: %s expects a number", ErrInvalidAnswer, qt)
			}
			if strings.TrimSpace(s) == "" {
				return nil, nil
			}
			parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if perr != nil {
				return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, s)
			}
			n = parsed
		}
		return &AnswerValue{Kind: qt, Number: &n}, nil

	case ShortText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s expects text", ErrInvalidAnswer, qt)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		return &AnswerValue{Kind: qt, Text: s}, nil
	}
	return nil, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, qt)
}

// Plain returns the value in the shape the client submitted it.
func (v *AnswerValue) Plain() interface{} {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case SingleChoice, TrueFalse:
		return v.Choice
	case MultiSelect:
		return v.Choices
	case Numeric:
		if v.Number == nil {
			return nil
		}
		return *v.Number
	default:
		return v.Text
	}
}

func (v AnswerValue) Value() (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *AnswerValue) Scan(src interface{}) error {
	switch data := src.(type) {
	case nil:
		*v = AnswerValue{}
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	}
	return fmt.Errorf("unsupported answer value source %T", src)
}
