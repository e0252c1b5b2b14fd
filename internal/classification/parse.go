package classification

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"ekomarket_backend/internal/pickups/domain"

	"github.com/spf13/cast"
)

var (
	fencedJSON      = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObject      = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// maxWeightKg caps model weight estimates at a plausible single pickup.
const maxWeightKg = 1000.0

// ErrNoJSON is returned when the model text holds no JSON object.
var ErrNoJSON = errors.New("no json object in model output")

// ExtractJSON pulls the first JSON object out of free-form model output. It
// accepts fenced blocks, bare objects, line comments, and trailing commas.
func ExtractJSON(text string) (string, error) {
	candidate := ""
	if m := fencedJSON.FindStringSubmatch(text); len(m) > 1 {
		candidate = m[1]
	} else if m := bareObject.FindString(text); m != "" {
		candidate = m
	}
	if candidate == "" {
		return "", ErrNoJSON
	}

	lines := strings.Split(candidate, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	cleaned := trailingCommaRe.ReplaceAllString(strings.Join(lines, "\n"), "$1")

	if !json.Valid([]byte(cleaned)) {
		return "", fmt.Errorf("%w: invalid object", ErrNoJSON)
	}
	return cleaned, nil
}

// stripLineComment removes a // comment that is not inside a string literal.
func stripLineComment(line string) string {
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

// ParseResult converts model output into a Result. Numbers may arrive as
// strings; confidence is clamped to [0,1] and weight to [0,maxWeightKg].
// Unrecognised categories map to nil and force manual review.
func ParseResult(text string) (Result, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Result{}, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Result{}, fmt.Errorf("decode classification: %w", err)
	}

	result := Result{DetectedItems: []string{}}

	if value := firstOf(fields, "category", "detectedCategory", "plasticType"); value != nil {
		if category, ok := domain.ParseCategory(cast.ToString(value)); ok {
			result.DetectedCategory = &category
		}
	}

	confidence, err := cast.ToFloat64E(firstOf(fields, "confidence"))
	if err != nil {
		return Result{}, fmt.Errorf("classification confidence: %w", err)
	}
	result.Confidence = clamp(confidence, 0, 1)

	if value := firstOf(fields, "estimatedWeight", "weight", "weightKg"); value != nil {
		result.EstimatedWeight = clamp(cast.ToFloat64(value), 0, maxWeightKg)
	}

	result.Reasoning = strings.TrimSpace(cast.ToString(firstOf(fields, "reasoning", "explanation")))
	result.ManualReviewRequired = cast.ToBool(firstOf(fields, "manualReviewRequired", "manual_review_required"))
	if result.DetectedCategory == nil {
		result.ManualReviewRequired = true
	}

	for _, item := range cast.ToStringSlice(firstOf(fields, "detectedItems", "items")) {
		if item = strings.TrimSpace(item); item != "" {
			result.DetectedItems = append(result.DetectedItems, item)
		}
	}

	return result, nil
}

func firstOf(fields map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if value, ok := fields[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
