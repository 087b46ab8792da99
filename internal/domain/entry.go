package domain

import "time"

// Emotion labels produced by the default classification model.
const (
	EmotionAnger    = "anger"
	EmotionDisgust  = "disgust"
	EmotionFear     = "fear"
	EmotionJoy      = "joy"
	EmotionNeutral  = "neutral"
	EmotionSadness  = "sadness"
	EmotionSurprise = "surprise"
)

// Emotions lists the fixed label set in model order.
var Emotions = []string{
	EmotionAnger,
	EmotionDisgust,
	EmotionFear,
	EmotionJoy,
	EmotionNeutral,
	EmotionSadness,
	EmotionSurprise,
}

// IsEmotion reports whether label belongs to the fixed label set.
func IsEmotion(label string) bool {
	for _, e := range Emotions {
		if e == label {
			return true
		}
	}
	return false
}

// JournalEntry is one classified journal submission. Entries are immutable once stored.
type JournalEntry struct {
	ID        int64
	UserID    int64
	Text      string
	Emotion   string
	Score     float64
	CreatedAt time.Time
}
