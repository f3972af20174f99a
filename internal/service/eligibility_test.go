package service

import (
	"errors"
	"testing"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/util"
)

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	inst := "inst-1"
	other := "inst-2"
	course := "course-1"

	student := &model.User{
		UUIDBase:      model.UUIDBase{ID: "stu-1"},
		Role:          model.Student,
		InstitutionID: &inst,
		DepartmentID:  strPtr("dept-1"),
		SectionID:     strPtr("sec-1"),
	}
	baseExam := func() *model.Exam {
		return &model.Exam{
			UUIDBase:       model.UUIDBase{ID: "e1"},
			InstitutionID:  &inst,
			Status:         model.ExamActive,
			MaxAttempts:    2,
			AssignmentMode: model.AssignAll,
		}
	}

	tests := []struct {
		name    string
		purpose EligibilityPurpose
		exam    func() *model.Exam
		facts   func(f *EligibilityFacts)
		wantErr error
	}{
		{
			name:    "open exam",
			purpose: PurposeStart,
			exam:    baseExam,
		},
		{
			name:    "department match suffices for a section assignment",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.AssignmentMode = model.AssignSection
				e.Targets = []model.ExamTarget{
					{Kind: model.TargetSection, TargetID: "sec-9"},
					{Kind: model.TargetDepartment, TargetID: "dept-1"},
				}
				return e
			},
		},
		{
			name:    "individually assigned",
			purpose: PurposeList,
			exam: func() *model.Exam {
				e := baseExam()
				e.AssignmentMode = model.AssignIndividual
				e.Targets = []model.ExamTarget{{Kind: model.TargetStudent, TargetID: "stu-1"}}
				return e
			},
		},
		{
			name:    "targeted elsewhere",
			purpose: PurposeView,
			exam: func() *model.Exam {
				e := baseExam()
				e.AssignmentMode = model.AssignDepartment
				e.Targets = []model.ExamTarget{{Kind: model.TargetDepartment, TargetID: "dept-2"}}
				return e
			},
			wantErr: util.ErrExamNotFound,
		},
		{
			name:    "draft is invisible",
			purpose: PurposeView,
			exam: func() *model.Exam {
				e := baseExam()
				e.Status = model.ExamDraft
				return e
			},
			wantErr: util.ErrExamNotFound,
		},
		{
			name:    "draft cannot start",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.Status = model.ExamDraft
				return e
			},
			wantErr: util.ErrExamNotOpen,
		},
		{
			name:    "completed is viewable",
			purpose: PurposeView,
			exam: func() *model.Exam {
				e := baseExam()
				e.Status = model.ExamCompleted
				e.EndTime = &past
				return e
			},
		},
		{
			name:    "completed is not listed",
			purpose: PurposeList,
			exam: func() *model.Exam {
				e := baseExam()
				e.Status = model.ExamCompleted
				return e
			},
			wantErr: util.ErrExamNotFound,
		},
		{
			name:    "window not open yet",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.StartTime = &future
				return e
			},
			wantErr: util.ErrExamNotStarted,
		},
		{
			name:    "view before the window opens",
			purpose: PurposeView,
			exam: func() *model.Exam {
				e := baseExam()
				e.Status = model.ExamPublished
				e.StartTime = &future
				return e
			},
			wantErr: util.ErrExamNotStarted,
		},
		{
			name:    "view of a running exam after its window",
			purpose: PurposeView,
			exam: func() *model.Exam {
				e := baseExam()
				e.EndTime = &past
				return e
			},
			wantErr: util.ErrExamEnded,
		},
		{
			name:    "window closed",
			purpose: PurposeList,
			exam: func() *model.Exam {
				e := baseExam()
				e.EndTime = &past
				return e
			},
			wantErr: util.ErrExamEnded,
		},
		{
			name:    "foreign institution looks absent",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.InstitutionID = &other
				return e
			},
			wantErr: util.ErrExamNotFound,
		},
		{
			name:    "course exam without enrollment",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.CourseID = &course
				return e
			},
			wantErr: util.ErrNotEnrolled,
		},
		{
			name:    "course exam with enrollment",
			purpose: PurposeStart,
			exam: func() *model.Exam {
				e := baseExam()
				e.CourseID = &course
				return e
			},
			facts: func(f *EligibilityFacts) { f.Enrolled = true },
		},
		{
			name:    "open attempt wins over exhausted budget",
			purpose: PurposeStart,
			exam:    baseExam,
			facts: func(f *EligibilityFacts) {
				f.HasOpenAttempt = true
				f.AttemptsUsed = 2
			},
			wantErr: util.ErrAttemptInProgress,
		},
		{
			name:    "budget exhausted",
			purpose: PurposeStart,
			exam:    baseExam,
			facts:   func(f *EligibilityFacts) { f.AttemptsUsed = 2 },
			wantErr: util.ErrMaxAttemptsReached,
		},
		{
			name:    "budget only gates start",
			purpose: PurposeView,
			exam:    baseExam,
			facts:   func(f *EligibilityFacts) { f.AttemptsUsed = 5 },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			facts := EligibilityFacts{Student: student, Exam: tc.exam(), Now: now}
			if tc.facts != nil {
				tc.facts(&facts)
			}
			err := CheckEligibility(tc.purpose, facts)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
