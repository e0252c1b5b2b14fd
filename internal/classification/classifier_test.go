package classification

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"iter"
	"testing"
	"time"

	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

type fakeLLM struct {
	text  string
	err   error
	block bool
	req   *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake-vision" }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.req = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.block {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: &genai.Content{Role: "model", Parts: []*genai.Part{genai.NewPartFromText(f.text)}}}, nil)
	}
}

func testPhoto(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestClassifyParsesModelOutput(t *testing.T) {
	llm := &fakeLLM{text: "Here you go:\n```json\n{\"category\": \"pet\", \"confidence\": \"0.92\", \"estimatedWeight\": 2.4, \"reasoning\": \"clear bottles\", \"detectedItems\": [\"bottle\", \"bottle\"],}\n```"}
	m := metrics.New()
	svc := New(llm, time.Second, m, logger.Nop())

	result, err := svc.Classify(context.Background(), testPhoto(t), "image/png", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Fallback {
		t.Fatal("expected a model result, got fallback")
	}
	if result.DetectedCategory == nil || *result.DetectedCategory != domain.CategoryPET {
		t.Fatalf("category = %v, want PET", result.DetectedCategory)
	}
	if result.Confidence != 0.92 || result.EstimatedWeight != 2.4 {
		t.Fatalf("unexpected numbers %+v", result)
	}
	if len(result.DetectedItems) != 2 {
		t.Fatalf("detected items = %v", result.DetectedItems)
	}
	if got := testutil.ToFloat64(m.ClassificationRequests.WithLabelValues("success")); got != 1 {
		t.Fatalf("success count = %v, want 1", got)
	}

	parts := llm.req.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/png" {
		t.Fatalf("expected the photo as inline data, got %+v", parts[0])
	}
}

func TestClassifyFallsBackOnProviderFailure(t *testing.T) {
	weight := 3.5
	hint := &Hint{Weight: &weight}

	tests := []struct {
		name string
		llm  model.LLM
	}{
		{"no model configured", nil},
		{"provider error", &fakeLLM{err: errors.New("503 overloaded")}},
		{"unparseable output", &fakeLLM{text: "I think it is plastic."}},
		{"timeout", &fakeLLM{block: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.New()
			svc := New(tc.llm, 20*time.Millisecond, m, logger.Nop())

			result, err := svc.Classify(context.Background(), testPhoto(t), "image/png", hint)
			if err != nil {
				t.Fatalf("fallback must not surface an error, got %v", err)
			}
			if !result.Fallback || !result.ManualReviewRequired {
				t.Fatalf("expected fallback with manual review, got %+v", result)
			}
			if result.DetectedCategory != nil || result.Confidence != FallbackConfidence {
				t.Fatalf("unexpected fallback shape %+v", result)
			}
			if result.EstimatedWeight != weight {
				t.Fatalf("fallback weight = %v, want hint %v", result.EstimatedWeight, weight)
			}
			if got := testutil.ToFloat64(m.ClassificationRequests.WithLabelValues("fallback")); got != 1 {
				t.Fatalf("fallback count = %v, want 1", got)
			}
		})
	}
}

func TestClassifyRejectsInvalidImages(t *testing.T) {
	svc := New(&fakeLLM{text: "{}"}, time.Second, nil, logger.Nop())

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an image", []byte("%PDF-1.7 definitely not a photo")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Classify(context.Background(), tc.data, "image/jpeg", nil)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseResultClampsAndFlagsUnknownCategory(t *testing.T) {
	result, err := ParseResult(`{"category": "glass", "confidence": 1.7, "estimatedWeight": -4} // model note`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DetectedCategory != nil {
		t.Fatalf("unknown category must map to nil, got %v", *result.DetectedCategory)
	}
	if result.Confidence != 1 || result.EstimatedWeight != 0 {
		t.Fatalf("values not clamped: %+v", result)
	}
	if !result.ManualReviewRequired {
		t.Fatal("unknown category must require manual review")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", "Result: {\"a\":1} done", `{"a":1}`, false},
		{"comment outside string", "{\"a\":\"http://x\" // note\n}", "{\"a\":\"http://x\" \n}", false},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`, false},
		{"no object", "nothing here", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("ExtractJSON() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecisionHelpers(t *testing.T) {
	policy := config.DefaultPolicy().Classification
	pet := domain.CategoryPET

	tests := []struct {
		name       string
		result     Result
		autoFill   bool
		manualFlag bool
	}{
		{"confident", Result{DetectedCategory: &pet, Confidence: 0.9}, true, false},
		{"fills but reviewed", Result{DetectedCategory: &pet, Confidence: 0.55}, true, true},
		{"below autofill", Result{DetectedCategory: &pet, Confidence: 0.4}, false, true},
		{"no category", Result{Confidence: 0.95, ManualReviewRequired: true}, false, true},
		{"fallback", Fallback(nil), false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldAutoFill(tc.result, policy); got != tc.autoFill {
				t.Errorf("ShouldAutoFill = %v, want %v", got, tc.autoFill)
			}
			if got := NeedsManualReview(tc.result, policy); got != tc.manualFlag {
				t.Errorf("NeedsManualReview = %v, want %v", got, tc.manualFlag)
			}
		})
	}
}
