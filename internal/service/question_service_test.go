package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
)

func choiceRequest(qt model.QuestionType, correct ...bool) QuestionRequest {
	req := QuestionRequest{Type: qt, Text: "Pick one", Marks: 2}
	for i, c := range correct {
		req.Options = append(req.Options, QuestionOptionInput{Text: string(rune('A' + i)), IsCorrect: c})
	}
	return req
}

func TestQuestion_CreateShapes(t *testing.T) {
	tests := []struct {
		name    string
		req     QuestionRequest
		wantErr bool
	}{
		{name: "single choice", req: choiceRequest(model.SingleChoice, false, true, false)},
		{name: "multi select two keys", req: choiceRequest(model.MultiSelect, true, true, false)},
		{name: "true false", req: choiceRequest(model.TrueFalse, true, false)},
		{name: "single choice two keys", req: choiceRequest(model.SingleChoice, true, true), wantErr: true},
		{name: "choice without key", req: choiceRequest(model.MultiSelect, false, false), wantErr: true},
		{name: "one option", req: choiceRequest(model.SingleChoice, true), wantErr: true},
		{
			name: "numeric",
			req:  QuestionRequest{Type: model.Numeric, Text: "2+2", CorrectAnswer: json.RawMessage(`4`)},
		},
		{
			name:    "numeric without key",
			req:     QuestionRequest{Type: model.Numeric, Text: "2+2", CorrectAnswer: json.RawMessage(`"four"`)},
			wantErr: true,
		},
		{
			name:    "numeric with options",
			req:     QuestionRequest{Type: model.Numeric, Text: "2+2", CorrectAnswer: json.RawMessage(`4`), Options: []QuestionOptionInput{{Text: "4"}}},
			wantErr: true,
		},
		{
			name: "short text accepted spellings",
			req:  QuestionRequest{Type: model.ShortText, Text: "Spell it", CorrectAnswer: json.RawMessage(`["colour","color"]`)},
		},
		{
			name:    "short text blank key",
			req:     QuestionRequest{Type: model.ShortText, Text: "Spell it", CorrectAnswer: json.RawMessage(`"  "`)},
			wantErr: true,
		},
		{
			name:    "unknown type",
			req:     QuestionRequest{Type: "essay", Text: "Discuss"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			svc := NewQuestionService(f.store)
			q, err := svc.CreateQuestion(context.Background(), f.educator, tc.req)
			if tc.wantErr {
				if util.KindOf(err) != util.KindBadRequest {
					t.Fatalf("err = %v, want bad request", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateQuestion: %v", err)
			}
			if q.ID == "" || q.CreatedBy != f.educator.ID {
				t.Fatalf("question = %+v", q)
			}
			for _, o := range q.Options {
				if o.ID == "" {
					t.Fatal("option without id")
				}
			}
		})
	}
}

func TestQuestion_Defaults(t *testing.T) {
	f := newFixture()
	svc := NewQuestionService(f.store)
	req := choiceRequest(model.SingleChoice, true, false)
	req.Marks = 0

	q, err := svc.CreateQuestion(context.Background(), f.educator, req)
	if err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}
	if q.Marks != 1 || q.Difficulty != model.DifficultyMedium {
		t.Fatalf("defaults = %v/%s, want 1/medium", q.Marks, q.Difficulty)
	}
	if q.CorrectAnswer != nil {
		t.Fatalf("choice question stored a scalar key: %s", q.CorrectAnswer)
	}
}

func TestQuestion_StudentsCannotTouchTheBank(t *testing.T) {
	f := newFixture()
	svc := NewQuestionService(f.store)
	f.addChoiceQuestion("q1", 1)
	ctx := context.Background()

	if _, err := svc.CreateQuestion(ctx, f.student, choiceRequest(model.SingleChoice, true, false)); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("create err = %v", err)
	}
	if _, err := svc.GetQuestion(ctx, f.student, "q1"); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("get err = %v", err)
	}
	if _, _, err := svc.ListQuestions(ctx, f.student, QuestionListRequest{}); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("list err = %v", err)
	}
}

func TestQuestion_UpdateLockedByRunningExam(t *testing.T) {
	tests := []struct {
		status  model.ExamStatus
		wantErr error
	}{
		{model.ExamDraft, nil},
		{model.ExamPublished, nil},
		{model.ExamActive, util.ErrExamLocked},
		{model.ExamCompleted, util.ErrExamLocked},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newFixture()
			svc := NewQuestionService(f.store)
			f.addExam("e1", tc.status, f.addChoiceQuestion("q1", 1))

			req := choiceRequest(model.SingleChoice, false, true)
			req.Text = "Edited"
			q, err := svc.UpdateQuestion(context.Background(), f.educator, "q1", req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if f.store.questions["q1"].Text == "Edited" {
					t.Fatal("locked question was modified")
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateQuestion: %v", err)
			}
			if q.Text != "Edited" || len(q.Options) != 2 || !q.Options[1].IsCorrect {
				t.Fatalf("question = %+v", q)
			}
			if q.Options[0].ID == "q1-a" {
				t.Fatal("option ids were not regenerated")
			}
		})
	}
}

func TestQuestion_DeleteBlockedByAnyExam(t *testing.T) {
	f := newFixture()
	svc := NewQuestionService(f.store)
	f.addExam("e1", model.ExamDraft, f.addChoiceQuestion("q1", 1))
	f.addChoiceQuestion("q2", 1)
	ctx := context.Background()

	if err := svc.DeleteQuestion(ctx, f.educator, "q1"); !errors.Is(err, util.ErrQuestionInUse) {
		t.Fatalf("err = %v, want question in use", err)
	}
	if err := svc.DeleteQuestion(ctx, f.educator, "q2"); err != nil {
		t.Fatalf("DeleteQuestion: %v", err)
	}
	if _, err := svc.GetQuestion(ctx, f.educator, "q2"); !errors.Is(err, util.ErrQuestionNotFound) {
		t.Fatalf("get after delete err = %v, want not found", err)
	}
}

func TestQuestion_UpdateBlockedByOpenAttemptOnArchivedExam(t *testing.T) {
	f := newFixture()
	svc := NewQuestionService(f.store)
	f.addExam("e1", model.ExamActive, f.addChoiceQuestion("q1", 1))
	session := f.start(t, "e1")
	f.save(t, session.AttemptID, "q1", "q1-a")
	ctx := context.Background()

	if _, err := f.exams.Archive(ctx, f.educator, "e1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	req := choiceRequest(model.SingleChoice, true, false)
	req.Text = "Edited"
	if _, err := svc.UpdateQuestion(ctx, f.educator, "q1", req); !errors.Is(err, util.ErrQuestionInAttempt) {
		t.Fatalf("err = %v, want question in attempt", err)
	}
	if f.store.questions["q1"].Options[0].ID != "q1-a" {
		t.Fatal("option ids changed under an open attempt")
	}

	if _, err := f.attempts.SubmitAttempt(ctx, f.student, session.AttemptID, testMeta); err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if _, err := svc.UpdateQuestion(ctx, f.educator, "q1", req); err != nil {
		t.Fatalf("UpdateQuestion after submit: %v", err)
	}
}
