package translation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/resource"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// anchorLanguage pairs single-language model downloads: vendor models
// are managed per language, but the backend download surface is
// pair-based.
const anchorLanguage = "en"

// Service wraps the vendor translation backend with text validation,
// per-pair download coordination and a cache of translator handles.
//
// The in-memory ready set only tracks readiness established by this
// process's own download calls; ModelsDownloaded queries the vendor
// directly and never consults it.
type Service struct {
	backend Backend
	cache   *resource.Cache[Translator]
	store   PairStore // optional
	timeout time.Duration
	retry   apperr.RetryPolicy

	// mu guards only the readiness-check-and-download sequence, never
	// the translate call itself, so ready pairs never contend with an
	// unrelated pair's download.
	mu    sync.RWMutex
	ready map[PairKey]struct{}
}

type Option func(*Service)

// WithRetryPolicy overrides the backoff applied to transient vendor
// failures on the translate and download paths.
func WithRetryPolicy(policy apperr.RetryPolicy) Option {
	return func(s *Service) {
		if policy.MaxAttempts > 0 {
			s.retry = policy
		}
	}
}

func NewService(backend Backend, store PairStore, timeout time.Duration, opts ...Option) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Service{
		backend: backend,
		cache:   resource.NewCache[Translator](),
		store:   store,
		timeout: timeout,
		retry:   apperr.DefaultRetryPolicy(),
		ready:   make(map[PairKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Translate translates text from one language to another, downloading
// the pair's model first if this process has not seen it ready yet.
func (s *Service) Translate(ctx context.Context, text, from, to string, conditions DownloadConditions) (string, error) {
	const op = "translation.Translate"

	if strings.TrimSpace(text) == "" {
		return "", apperr.New(apperr.ErrInvalidInput, op, "text must not be blank")
	}
	pair, err := NewPairKey(from, to)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrInvalidInput, op, "invalid language pair", err)
	}

	if err := s.ensureModelReady(ctx, pair, conditions); err != nil {
		return "", err
	}

	translator, err := s.cache.GetOrCreate(string(pair), func() (Translator, error) {
		log.Debug("Creating translator for %s", pair)
		return s.backend.NewTranslator(pair)
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Classify(err), op, "failed to create translator", err).
			WithContext("pair", string(pair))
	}

	// Transient vendor failures are retried with backoff; each attempt
	// gets its own timeout.
	translated, err := apperr.WithRetry(ctx, s.retry, op, func(ctx context.Context) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return translator.Translate(attemptCtx, text)
	})
	if err != nil {
		return "", withPairContext(err, pair)
	}
	return translated, nil
}

// withPairContext tags a classified error with the pair it failed for.
func withPairContext(err error, pair PairKey) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.WithContext("pair", string(pair))
	}
	return err
}

// ensureModelReady guarantees at most one download attempt is in flight
// per pair in this process: lock-free fast path, then an exclusive lock
// with a double-check before triggering the vendor download.
func (s *Service) ensureModelReady(ctx context.Context, pair PairKey, conditions DownloadConditions) error {
	const op = "translation.ensureModelReady"

	s.mu.RLock()
	_, ok := s.ready[pair]
	s.mu.RUnlock()
	if ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A concurrent caller may have just finished the download.
	if _, ok := s.ready[pair]; ok {
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Both models already on device means no download trigger at all.
	downloaded, err := s.modelsDownloadedLocked(queryCtx, pair)
	if err == nil && downloaded {
		s.markReadyLocked(ctx, pair)
		return nil
	}

	// Network and model-availability failures are retried with backoff;
	// each download attempt gets its own timeout.
	if _, err := apperr.WithRetry(ctx, s.retry, op, func(ctx context.Context) (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return struct{}{}, s.backend.DownloadModel(attemptCtx, pair, conditions)
	}); err != nil {
		return withPairContext(err, pair)
	}

	s.markReadyLocked(ctx, pair)
	return nil
}

func (s *Service) markReadyLocked(ctx context.Context, pair PairKey) {
	s.ready[pair] = struct{}{}
	if s.store == nil {
		return
	}
	if err := s.store.SavePair(ctx, pair.Source(), pair.Target()); err != nil {
		// Persistence is best-effort bookkeeping; the vendor backend
		// remains the source of truth.
		log.Warn("Failed to persist downloaded pair %s: %v", pair, err)
	}
}

func (s *Service) modelsDownloadedLocked(ctx context.Context, pair PairKey) (bool, error) {
	sourceOK, err := s.backend.IsModelDownloaded(ctx, pair.Source())
	if err != nil {
		return false, err
	}
	targetOK, err := s.backend.IsModelDownloaded(ctx, pair.Target())
	if err != nil {
		return false, err
	}
	return sourceOK && targetOK, nil
}

// ModelsDownloaded reports whether both models of the pair are on
// device. Pure vendor query; never triggers a download; fails closed to
// false on query errors.
func (s *Service) ModelsDownloaded(ctx context.Context, from, to string) bool {
	pair, err := NewPairKey(from, to)
	if err != nil {
		return false
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	downloaded, err := s.modelsDownloadedLocked(queryCtx, pair)
	if err != nil {
		log.Warn("Model status query failed for %s: %v", pair, err)
		return false
	}
	return downloaded
}

// IsLanguageDownloaded queries the vendor for a single language model.
func (s *Service) IsLanguageDownloaded(ctx context.Context, code string) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.IsModelDownloaded(queryCtx, code)
}

// DownloadModels downloads both models of the pair, using the same
// locking discipline as Translate.
func (s *Service) DownloadModels(ctx context.Context, from, to string, conditions DownloadConditions) error {
	const op = "translation.DownloadModels"

	pair, err := NewPairKey(from, to)
	if err != nil {
		return apperr.Wrap(apperr.ErrInvalidInput, op, "invalid language pair", err)
	}
	return s.ensureModelReady(ctx, pair, conditions)
}

// DownloadLanguageModel downloads a single language's model, paired with
// the anchor language.
func (s *Service) DownloadLanguageModel(ctx context.Context, code string, conditions DownloadConditions) error {
	return s.DownloadModels(ctx, anchorLanguage, code, conditions)
}

// DeleteModel removes the vendor model for a language, purges every
// cached translator whose pair contains that language (exact segment
// match), and clears the ready markers and persisted state.
func (s *Service) DeleteModel(ctx context.Context, code string) error {
	const op = "translation.DeleteModel"

	if strings.TrimSpace(code) == "" {
		return apperr.New(apperr.ErrInvalidInput, op, "language code must not be blank")
	}

	deleteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.backend.DeleteModel(deleteCtx, code); err != nil {
		return apperr.Wrap(apperr.Classify(err), op, "vendor model deletion failed", err).
			WithContext("language", code)
	}

	evicted := s.cache.Evict(func(key string) bool {
		return PairKey(key).ContainsLanguage(code)
	})
	log.Info("Deleted model %s, evicted %d cached translators", code, evicted)

	s.mu.Lock()
	for pair := range s.ready {
		if pair.ContainsLanguage(code) {
			delete(s.ready, pair)
		}
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.RemovePairsWithLanguage(ctx, code); err != nil {
			log.Warn("Failed to clear persisted pairs for %s: %v", code, err)
		}
	}
	return nil
}

// CachedTranslators returns the number of live translator handles.
func (s *Service) CachedTranslators() int {
	return s.cache.Size()
}

// Cleanup releases all cached translators and clears the ready set.
func (s *Service) Cleanup() {
	s.cache.Cleanup()
	s.mu.Lock()
	s.ready = make(map[PairKey]struct{})
	s.mu.Unlock()
}
