// Package classifier implements the emotion classification gateway.
//
// A Classifier never fails: when the remote service cannot produce a usable
// answer it returns the fallback pair ("neutral", 0.0).
package classifier

import (
	"context"

	"github.com/splax/moodjournal/internal/domain"
)

// Fallback result returned whenever classification cannot complete.
const (
	FallbackLabel         = domain.EmotionNeutral
	FallbackScore float64 = 0.0
)

// Classifier assigns an emotion label and confidence score to text.
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, score float64)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, text string) (string, float64)

// Classify calls f.
func (f Func) Classify(ctx context.Context, text string) (string, float64) {
	return f(ctx, text)
}

// Static always returns the same pair.
type Static struct {
	Label string
	Score float64
}

// Fallback returns a Static classifier that yields the fallback pair.
func Fallback() Static {
	return Static{Label: FallbackLabel, Score: FallbackScore}
}

// Classify returns the configured pair.
func (s Static) Classify(context.Context, string) (string, float64) {
	return s.Label, s.Score
}
