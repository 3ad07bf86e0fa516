package persistence

import (
	"fmt"
	"strings"
	"time"
)

// ConversationTurn is one saved translation exchange. The timestamp is
// the primary key; re-saving the same timestamp replaces the row.
type ConversationTurn struct {
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText"`
	SourceLang     string    `json:"sourceLang"`
	TargetLang     string    `json:"targetLang"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewConversationTurn validates and builds a turn stamped with the
// current instant. All text fields must be non-blank and the languages
// must differ.
func NewConversationTurn(originalText, translatedText, sourceLang, targetLang string) (ConversationTurn, error) {
	if strings.TrimSpace(originalText) == "" {
		return ConversationTurn{}, fmt.Errorf("original text must not be blank")
	}
	if strings.TrimSpace(translatedText) == "" {
		return ConversationTurn{}, fmt.Errorf("translated text must not be blank")
	}
	if strings.TrimSpace(sourceLang) == "" || strings.TrimSpace(targetLang) == "" {
		return ConversationTurn{}, fmt.Errorf("language codes must not be blank")
	}
	if sourceLang == targetLang {
		return ConversationTurn{}, fmt.Errorf("source and target language must differ")
	}
	return ConversationTurn{
		OriginalText:   originalText,
		TranslatedText: translatedText,
		SourceLang:     sourceLang,
		TargetLang:     targetLang,
		Timestamp:      time.Now().UTC(),
	}, nil
}
