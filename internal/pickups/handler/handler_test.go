package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"ekomarket_backend/internal/pickups/domain"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func multipartContext(t *testing.T, fields map[string]string, files map[string][]byte) *gin.Context {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		_, _ = part.Write(data)
	}
	_ = w.Close()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/pickups", &body)
	c.Request.Header.Set("Content-Type", w.FormDataContentType())
	return c
}

func TestFormFromRequestKeepsRawFields(t *testing.T) {
	c := multipartContext(t,
		map[string]string{"category": "PET", "estimatedWeight": "5.0", "lat": "-6.2", "lng": "106.8", "address": "Jl. Sudirman", "manualReviewRequired": "true"},
		map[string][]byte{"before": []byte("\x89PNG\r\n\x1a\nrest")},
	)

	form, err := formFromRequest(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if form.Before == nil || form.After != nil {
		t.Fatalf("expected only a before upload, got before=%v after=%v", form.Before, form.After)
	}
	if form.Category != "PET" || form.EstimatedWeight != "5.0" || form.ManualReviewRequired != "true" {
		t.Fatalf("unexpected form %+v", form)
	}
}

func TestHintFromForm(t *testing.T) {
	c := multipartContext(t, map[string]string{"category": "hdpe", "weight": "2.5"}, nil)
	hint := hintFromForm(c)
	if hint == nil || hint.Category == nil || *hint.Category != domain.CategoryHDPE || hint.Weight == nil || *hint.Weight != 2.5 {
		t.Fatalf("unexpected hint %+v", hint)
	}

	empty := multipartContext(t, map[string]string{"weight": "heavy"}, nil)
	if hintFromForm(empty) != nil {
		t.Fatal("unparseable hint fields should give no hint")
	}
}
