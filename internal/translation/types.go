package translation

import (
	"context"
	"fmt"
	"strings"
)

// PairKey identifies an ordered source→target language pair, formatted
// "source-target". Both segments are base language codes, so the
// separator never collides with a region subtag. It is never persisted
// directly; the persisted form is the pair store's string set.
type PairKey string

// NewPairKey validates both codes and builds the key. Region subtags are
// dropped: vendor models are per base language, so "zh-CN" and "zh-TW"
// share the "zh" model.
func NewPairKey(source, target string) (PairKey, error) {
	source = baseCode(source)
	target = baseCode(target)
	if source == "" || target == "" {
		return "", fmt.Errorf("language codes must not be blank")
	}
	return PairKey(source + "-" + target), nil
}

// baseCode strips a region subtag ("zh-CN" → "zh", "pt_BR" → "pt").
func baseCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

func (k PairKey) Source() string {
	source, _, _ := strings.Cut(string(k), "-")
	return source
}

func (k PairKey) Target() string {
	_, target, _ := strings.Cut(string(k), "-")
	return target
}

// ContainsLanguage reports whether code is exactly the source or target
// segment of the key. "esperanto-en" does not contain "es".
func (k PairKey) ContainsLanguage(code string) bool {
	return k.Source() == code || k.Target() == code
}

// DownloadConditions gates model downloads on network policy.
type DownloadConditions struct {
	RequireWifi bool
}

// Translator is a vendor handle able to translate text for one pair.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	Close() error
}

// Backend is the narrow vendor translation surface the service depends
// on. Calls may block for seconds to minutes (downloads) and may fail
// with vendor-specific errors.
type Backend interface {
	NewTranslator(pair PairKey) (Translator, error)
	DownloadModel(ctx context.Context, pair PairKey, conditions DownloadConditions) error
	IsModelDownloaded(ctx context.Context, language string) (bool, error)
	DeleteModel(ctx context.Context, language string) error
}

// PairStore persists the set of successfully downloaded pairs across
// process restarts. It is informational only; the vendor backend stays
// the source of truth for ModelsDownloaded.
type PairStore interface {
	SavePair(ctx context.Context, source, target string) error
	RemovePairsWithLanguage(ctx context.Context, language string) error
	LoadPairs(ctx context.Context) ([]string, error)
}
