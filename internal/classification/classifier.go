// Package classification turns a pickup photo into a structured category and
// weight suggestion using an external vision model. Provider failures never
// reach the caller: they yield a deterministic fallback result.
package classification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ekomarket_backend/internal/adapters/storage"
	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/config"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/metrics"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	// FallbackConfidence is reported whenever the model could not be used.
	FallbackConfidence = 0.3
	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 20 * time.Second

	outcomeSuccess  = "success"
	outcomeFallback = "fallback"
)

// Hint carries the user's own category/weight guess. It is only given to the
// model for cross-checking.
type Hint struct {
	Category *domain.Category
	Weight   *float64
}

// Result is the structured classification outcome.
type Result struct {
	DetectedCategory     *domain.Category `json:"detectedCategory"`
	Confidence           float64          `json:"confidence"`
	EstimatedWeight      float64          `json:"estimatedWeight"`
	Reasoning            string           `json:"reasoning"`
	ManualReviewRequired bool             `json:"manualReviewRequired"`
	DetectedItems        []string         `json:"detectedItems"`
	// Fallback is true when the result did not come from the model.
	Fallback bool `json:"fallback"`
}

// Classifier is the contract the pickups module depends on.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string, hint *Hint) (Result, error)
}

// Service implements Classifier over an ADK model.LLM.
type Service struct {
	llm     model.LLM
	timeout time.Duration
	maxSize int64
	metrics *metrics.Registry
	log     *logger.Logger
}

var _ Classifier = (*Service)(nil)

// New creates the classifier. llm may be nil, in which case every call
// returns the fallback result.
func New(llm model.LLM, timeout time.Duration, m *metrics.Registry, log *logger.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		llm:     llm,
		timeout: timeout,
		maxSize: storage.DefaultMaxPhotoSize,
		metrics: m,
		log:     log,
	}
}

// NewFromConfig wires the classifier with the configured timeout.
func NewFromConfig(llm model.LLM, cfg config.VisionConfig, m *metrics.Registry, log *logger.Logger) *Service {
	return New(llm, cfg.GetClassificationTimeout(), m, log)
}

// Classify validates the image and asks the model for a classification.
// Only invalid input is returned as an error.
func (s *Service) Classify(ctx context.Context, image []byte, mimeType string, hint *Hint) (Result, error) {
	sniffed, err := storage.ValidateImage(image, s.maxSize)
	if err != nil {
		return Result{}, apperr.Fields([]apperr.FieldError{{Field: "photo", Message: err.Error()}})
	}
	if declared := normalizeMIME(mimeType); declared != "" && declared != sniffed && s.log != nil {
		s.log.Debug("declared photo type differs from content", "declared", declared, "sniffed", sniffed)
	}

	if s.llm == nil {
		s.observe(outcomeFallback, 0)
		return Fallback(hint), nil
	}

	start := time.Now()
	text, err := s.generate(ctx, image, sniffed, hint)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.degraded(err)
		s.observe(outcomeFallback, elapsed)
		return Fallback(hint), nil
	}

	result, err := ParseResult(text)
	if err != nil {
		s.degraded(err)
		s.observe(outcomeFallback, elapsed)
		return Fallback(hint), nil
	}

	s.observe(outcomeSuccess, elapsed)
	return result, nil
}

func (s *Service) generate(ctx context.Context, image []byte, mimeType string, hint *Hint) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	temperature := float32(0.1)
	req := &model.LLMRequest{
		Model: s.llm.Name(),
		Config: &genai.GenerateContentConfig{
			Temperature:       &temperature,
			MaxOutputTokens:   600,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(systemPrompt)}},
		},
		Contents: []*genai.Content{buildUserContent(image, mimeType, hint)},
	}

	var out strings.Builder
	for resp, err := range s.llm.GenerateContent(callCtx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				out.WriteString(part.Text)
			}
		}
	}
	if err := callCtx.Err(); err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", errors.New("classification model returned an empty body")
	}
	return text, nil
}

func buildUserContent(image []byte, mimeType string, hint *Hint) *genai.Content {
	return &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
			genai.NewPartFromText(buildUserPrompt(hint)),
		},
	}
}

// Fallback is the deterministic result used when the model cannot answer.
func Fallback(hint *Hint) Result {
	weight := 0.0
	if hint != nil && hint.Weight != nil && *hint.Weight > 0 {
		weight = *hint.Weight
	}
	return Result{
		DetectedCategory:     nil,
		Confidence:           FallbackConfidence,
		EstimatedWeight:      weight,
		Reasoning:            "Automatic classification is unavailable. Please enter the category and weight manually.",
		ManualReviewRequired: true,
		DetectedItems:        []string{},
		Fallback:             true,
	}
}

func (s *Service) observe(outcome string, seconds float64) {
	s.metrics.ObserveClassification(outcome, seconds)
}

func (s *Service) degraded(err error) {
	if s.log != nil {
		s.log.ExternalDegraded("classification", err)
	}
}

func normalizeMIME(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
