package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantKind    string
		wantMessage string
	}{
		{"not found", ErrExamNotFound, http.StatusNotFound, "not_found", "exam not found"},
		{"forbidden", ErrPermissionDenied, http.StatusForbidden, "forbidden", "permission denied"},
		{"bad request", ErrTimeExpired, http.StatusBadRequest, "bad_request", "time expired"},
		{"conflict", ErrDuplicate, http.StatusConflict, "conflict", "duplicate entry"},
		{"wrapped sentinel", fmt.Errorf("start: %w", ErrMaxAttemptsReached), http.StatusBadRequest, "bad_request", "start: maximum attempts reached"},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, "internal", "Internal server error: db down"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleError(c, tc.err)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tc.wantStatus || body.Kind != tc.wantKind || body.Message != tc.wantMessage {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestHandleError_ReleaseModeHidesDetail(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	defer gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	HandleError(c, errors.New("dial tcp 10.0.0.5:3306: refused"))

	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
}

func TestAppErrorIs(t *testing.T) {
	wrapped := Wrap(ErrQuestionNotFound, errors.New("q-7"))
	if !errors.Is(wrapped, ErrQuestionNotFound) {
		t.Fatal("wrapped copy should match its sentinel")
	}
	if errors.Is(wrapped, ErrExamNotFound) {
		t.Fatal("different message of the same kind must not match")
	}
	if wrapped.Error() != "question not found: q-7" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if KindOf(errors.New("x")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
}
