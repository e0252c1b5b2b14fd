package classification

import (
	"fmt"
	"strings"
)

const systemPrompt = `You classify photos of collected plastic waste for a recycling marketplace.
Identify the dominant resin class and estimate the total weight in kilograms.

Allowed categories: PET, HDPE, LDPE, PP, PS, Other.
- PET: clear drink bottles, food trays (resin code 1)
- HDPE: milk jugs, detergent and shampoo bottles (code 2)
- LDPE: plastic bags, films, squeeze bottles (code 4)
- PP: caps, yoghurt cups, food containers (code 5)
- PS: foam boxes, disposable cutlery, cups (code 6)
- Other: mixed or unidentifiable plastics (code 7)

Respond with ONE JSON object and nothing else:
{
  "category": "PET",
  "confidence": 0.0,
  "estimatedWeight": 0.0,
  "reasoning": "short explanation",
  "manualReviewRequired": false,
  "detectedItems": ["item", "item"]
}

confidence is between 0 and 1. Set manualReviewRequired to true when the photo is
unclear, the material is mixed, or the hint disagrees with what you see.`

// buildUserPrompt adds the user's hint for cross-checking only.
func buildUserPrompt(hint *Hint) string {
	var b strings.Builder
	b.WriteString("Classify the plastic waste in this photo.")

	if hint == nil {
		return b.String()
	}
	var notes []string
	if hint.Category != nil {
		notes = append(notes, fmt.Sprintf("category %s", *hint.Category))
	}
	if hint.Weight != nil && *hint.Weight > 0 {
		notes = append(notes, fmt.Sprintf("weight %.2f kg", *hint.Weight))
	}
	if len(notes) > 0 {
		b.WriteString("\nThe collector believes this is ")
		b.WriteString(strings.Join(notes, " and "))
		b.WriteString(". Cross-check this against the photo; report what you see, not the claim.")
	}
	return b.String()
}
