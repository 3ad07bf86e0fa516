package recognition

import (
	"context"
	"strings"
	"time"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/resource"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// Recognizer is a vendor OCR handle specialized for one script family.
type Recognizer interface {
	Recognize(ctx context.Context, img *Image) (*RawResult, error)
	Close() error
}

// RecognizerFactory builds a vendor recognizer for a script family.
type RecognizerFactory func(script Script) (Recognizer, error)

// Service resolves a script-specific recognizer per request and converts
// vendor results into the DetectedText model. Recognizer instances are
// cached per script; five entries at most.
type Service struct {
	cache   *resource.Cache[Recognizer]
	factory RecognizerFactory
	timeout time.Duration
}

func NewService(factory RecognizerFactory, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		cache:   resource.NewCache[Recognizer](),
		factory: factory,
		timeout: timeout,
	}
}

// RecognizeText runs OCR on img using the recognizer for the script
// family of languageHint.
func (s *Service) RecognizeText(ctx context.Context, img *Image, languageHint string) (*DetectedText, error) {
	const op = "recognition.RecognizeText"

	if img == nil || len(img.Data) == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, op, "image is empty")
	}

	script := ScriptForLanguage(languageHint)
	recognizer, err := s.cache.GetOrCreate(string(script), func() (Recognizer, error) {
		log.Debug("Creating %s recognizer", script)
		return s.factory(script)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Classify(err), op, "failed to create recognizer", err).
			WithContext("script", string(script))
	}

	recognizeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := recognizer.Recognize(recognizeCtx, img)
	if err != nil {
		return nil, apperr.Wrap(apperr.Classify(err), op, "recognition failed", err).
			WithContext("script", string(script))
	}

	return convertResult(raw), nil
}

// Cleanup releases every cached recognizer.
func (s *Service) Cleanup() {
	s.cache.Cleanup()
}

// CachedRecognizers returns the number of live recognizer instances.
func (s *Service) CachedRecognizers() int {
	return s.cache.Size()
}

func convertResult(raw *RawResult) *DetectedText {
	if raw == nil {
		return &DetectedText{Blocks: []TextBlock{}}
	}

	blocks := make([]TextBlock, 0, len(raw.Blocks))
	var full strings.Builder
	for _, rb := range raw.Blocks {
		lines := make([]TextLine, 0, len(rb.Lines))
		for _, rl := range rb.Lines {
			lines = append(lines, TextLine{
				Text:        rl.Text,
				BoundingBox: boxOrZero(rl.Box),
			})
		}
		blocks = append(blocks, TextBlock{
			Text:        rb.Text,
			BoundingBox: boxOrZero(rb.Box),
			Lines:       lines,
		})
		if full.Len() > 0 {
			full.WriteString("\n")
		}
		full.WriteString(rb.Text)
	}

	return &DetectedText{
		FullText: full.String(),
		Blocks:   blocks,
	}
}

func boxOrZero(box *Rect) Rect {
	if box == nil {
		return ZeroRect
	}
	return *box
}
