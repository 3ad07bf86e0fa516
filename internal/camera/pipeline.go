// Package camera sequences the live-translation pipeline: recognize,
// group, translate in parallel, reassemble with bounding boxes.
package camera

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/recognition"
	"github.com/patlar104/GlobalTranslation/internal/translation"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// DefaultMaxParallel caps the translation fan-out per frame.
const DefaultMaxParallel = 20

// Translator is the slice of the translation service the pipeline uses.
type Translator interface {
	Translate(ctx context.Context, text, from, to string, conditions translation.DownloadConditions) (string, error)
	ModelsDownloaded(ctx context.Context, from, to string) bool
}

// Recognizer is the slice of the recognition service the pipeline uses.
type Recognizer interface {
	RecognizeText(ctx context.Context, img *recognition.Image, languageHint string) (*recognition.DetectedText, error)
}

// TranslatedTextBlock is one recognized block with its translation.
// Produced transiently per frame; never persisted.
type TranslatedTextBlock struct {
	OriginalText   string           `json:"originalText"`
	TranslatedText string           `json:"translatedText"`
	BoundingBox    recognition.Rect `json:"boundingBox"`
	Confidence     float64          `json:"confidence"`
}

type Pipeline struct {
	recognizer  Recognizer
	translator  Translator
	maxParallel int64
	conditions  translation.DownloadConditions
}

func NewPipeline(recognizer Recognizer, translator Translator, maxParallel int, conditions translation.DownloadConditions) *Pipeline {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Pipeline{
		recognizer:  recognizer,
		translator:  translator,
		maxParallel: int64(maxParallel),
		conditions:  conditions,
	}
}

// ProcessImage runs the full pipeline on one frame. Stages are strict:
// recognition completes before grouping, grouping before any
// translation. The translation fan-out is bounded and cancellable as a
// unit; per-block failures fall back to the original text instead of
// failing the batch. The output preserves input block order.
func (p *Pipeline) ProcessImage(ctx context.Context, img *recognition.Image, sourceLanguage, targetLanguage string) (result []TranslatedTextBlock, err error) {
	const op = "camera.ProcessImage"

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = apperr.New(apperr.ErrUnknown, op, fmt.Sprintf("camera translation error: %v", r))
		}
	}()

	if img == nil || len(img.Data) == 0 {
		return nil, apperr.New(apperr.ErrInvalidInput, op, "image is empty")
	}

	detected, err := p.recognizer.RecognizeText(ctx, img, sourceLanguage)
	if err != nil {
		return nil, err
	}
	// No text found is a valid result, not an error; skip the
	// translation stage entirely.
	if len(detected.Blocks) == 0 {
		return []TranslatedTextBlock{}, nil
	}

	blocks := recognition.FilterAndGroup(detected.Blocks)
	if len(blocks) == 0 {
		return []TranslatedTextBlock{}, nil
	}

	translated := make([]TranslatedTextBlock, len(blocks))
	sem := semaphore.NewWeighted(p.maxParallel)
	g, groupCtx := errgroup.WithContext(ctx)

	for i, block := range blocks {
		g.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			out, err := p.translator.Translate(groupCtx, block.Text, sourceLanguage, targetLanguage, p.conditions)
			confidence := 1.0
			if err != nil {
				// Cancellation aborts the whole fan-out; any other
				// failure degrades to the original text, because
				// partial results beat total failure.
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				log.Warn("Block translation failed, falling back to original: %v", err)
				out = block.Text
				confidence = 0
			}
			translated[i] = TranslatedTextBlock{
				OriginalText:   block.Text,
				TranslatedText: out,
				BoundingBox:    block.BoundingBox,
				Confidence:     confidence,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.Classify(err), op, "camera translation error", err)
	}
	return translated, nil
}

// ModelsAvailable reports whether the pair's models are on device.
func (p *Pipeline) ModelsAvailable(ctx context.Context, sourceLanguage, targetLanguage string) bool {
	return p.translator.ModelsDownloaded(ctx, sourceLanguage, targetLanguage)
}
