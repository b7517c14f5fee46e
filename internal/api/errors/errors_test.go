package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{"validation", func(w http.ResponseWriter) { ValidationError(w, "m") }, http.StatusBadRequest, CodeValidationError},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "m") }, http.StatusForbidden, CodeForbidden},
		{"transition", func(w http.ResponseWriter) { InvalidTransition(w, "m") }, http.StatusConflict, CodeInvalidTransition},
		{"blob write", func(w http.ResponseWriter) { BlobWriteError(w, "m") }, http.StatusBadGateway, CodeBlobWriteError},
		{"record write", func(w http.ResponseWriter) { RecordWriteError(w, "m") }, http.StatusInternalServerError, CodeRecordWriteError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body errorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if body.Error.Code != tt.wantCode || body.Error.Message != "m" {
				t.Errorf("тело = %+v", body)
			}
		})
	}
}
