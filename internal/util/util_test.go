package util

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrQuizNotFound, ErrNotFound},
		{ErrActiveAttemptNotFound, ErrNotFound},
		{ErrMaxAttemptsExceeded, ErrBusinessRule},
		{ErrAttemptNotCompleted, ErrIllegalState},
		{ErrStatisticsBusy, ErrServiceUnavailable},
		{Wrapf(ErrQuizNotFound, "id=%d", 3), ErrNotFound},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v should be %v", tt.err, tt.kind)
		}
	}
	if IsClientError(errors.New("db down")) {
		t.Error("infrastructure error classified as client error")
	}
	if !IsClientError(ErrAttemptNotCompleted) {
		t.Error("illegal state should be a client error")
	}
}

func TestHandleError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err  error
		code int
	}{
		{ErrQuizNotFound, http.StatusNotFound},
		{ErrQuizInactive, http.StatusBadRequest},
		{ErrAttemptNotCompleted, http.StatusConflict},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrStatisticsBusy, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		HandleError(c, tt.err)

		if w.Code != tt.code {
			t.Errorf("%v: code = %d, want %d", tt.err, w.Code, tt.code)
		}
		var resp Response
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != tt.code {
			t.Errorf("%v: body code = %d", tt.err, resp.Code)
		}
	}
}

func TestParseTimeParam(t *testing.T) {
	for _, s := range []string{"2024-03-01T10:00:00Z", "2024-03-01 10:00:00", "2024-03-01"} {
		if _, err := ParseTimeParam(s); err != nil {
			t.Errorf("ParseTimeParam(%q): %v", s, err)
		}
	}
	if _, err := ParseTimeParam("yesterday"); !errors.Is(err, ErrBusinessRule) {
		t.Errorf("err = %v, want business rule", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(7, "teacher", "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 7 || claims.Role != "teacher" {
		t.Fatalf("claims = %+v", claims)
	}
	if _, err := ParseJWT(token, "other"); err == nil {
		t.Fatal("expected signature error")
	}
}
