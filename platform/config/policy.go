package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable business thresholds. The values are loaded from an
// optional YAML file so operators can adjust them without a rebuild.
type Policy struct {
	Classification ClassificationPolicy `yaml:"classification"`
	// RewardRates maps a plastic category to EkoTokens credited per verified kg.
	RewardRates map[string]float64 `yaml:"rewardRates"`
}

// ClassificationPolicy holds the confidence cutoffs used by the submission
// pipeline and AI-assisted verification.
type ClassificationPolicy struct {
	// AutoFillThreshold is the minimum confidence for pre-filling the form.
	AutoFillThreshold float64 `yaml:"autoFillThreshold"`
	// ManualReviewThreshold flags a pickup for manual review below this value.
	ManualReviewThreshold float64 `yaml:"manualReviewThreshold"`
	// AutoVerifyThreshold lets AI verification move a pickup to verified.
	AutoVerifyThreshold float64 `yaml:"autoVerifyThreshold"`
	// AutoRejectThreshold lets AI verification reject a category mismatch.
	AutoRejectThreshold float64 `yaml:"autoRejectThreshold"`
}

// DefaultPolicy returns the built-in policy used when no file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Classification: ClassificationPolicy{
			AutoFillThreshold:     0.5,
			ManualReviewThreshold: 0.6,
			AutoVerifyThreshold:   0.85,
			AutoRejectThreshold:   0.9,
		},
		RewardRates: map[string]float64{
			"PET":   10,
			"HDPE":  8,
			"LDPE":  5,
			"PP":    6,
			"PS":    4,
			"Other": 2,
		},
	}
}

// LoadPolicy reads a YAML policy file. Missing keys keep their defaults and an
// empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML on top of DefaultPolicy and validates the result.
func ParsePolicy(data []byte) (Policy, error) {
	policy := DefaultPolicy()
	defaultRates := policy.RewardRates
	policy.RewardRates = nil

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	merged := make(map[string]float64, len(defaultRates))
	for category, rate := range defaultRates {
		merged[category] = rate
	}
	for category, rate := range policy.RewardRates {
		merged[category] = rate
	}
	policy.RewardRates = merged

	if err := policy.validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (p Policy) validate() error {
	thresholds := map[string]float64{
		"autoFillThreshold":     p.Classification.AutoFillThreshold,
		"manualReviewThreshold": p.Classification.ManualReviewThreshold,
		"autoVerifyThreshold":   p.Classification.AutoVerifyThreshold,
		"autoRejectThreshold":   p.Classification.AutoRejectThreshold,
	}
	for name, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("policy %s must be within [0,1], got %v", name, value)
		}
	}
	for category, rate := range p.RewardRates {
		if rate < 0 {
			return fmt.Errorf("policy reward rate for %s must not be negative", category)
		}
	}
	return nil
}

// RewardRate returns the token rate for the category, zero when unknown.
func (p Policy) RewardRate(category string) float64 {
	return p.RewardRates[category]
}
