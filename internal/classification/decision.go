package classification

import "ekomarket_backend/platform/config"

// ShouldAutoFill reports whether the result is confident enough to pre-fill
// the submission form.
func ShouldAutoFill(result Result, policy config.ClassificationPolicy) bool {
	return result.DetectedCategory != nil && result.Confidence >= policy.AutoFillThreshold
}

// NeedsManualReview reports whether a pickup built from result must be
// reviewed by a human before verification.
func NeedsManualReview(result Result, policy config.ClassificationPolicy) bool {
	return result.Fallback ||
		result.ManualReviewRequired ||
		result.Confidence < policy.ManualReviewThreshold
}
