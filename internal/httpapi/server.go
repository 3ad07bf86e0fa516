package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/patlar104/GlobalTranslation/internal/camera"
	"github.com/patlar104/GlobalTranslation/internal/download"
	"github.com/patlar104/GlobalTranslation/internal/persistence"
	"github.com/patlar104/GlobalTranslation/internal/recognition"
	"github.com/patlar104/GlobalTranslation/internal/translation"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

// TranslationService is the translate surface the API exposes.
type TranslationService interface {
	Translate(ctx context.Context, text, from, to string, conditions translation.DownloadConditions) (string, error)
	ModelsDownloaded(ctx context.Context, from, to string) bool
}

// CameraPipeline is the camera-frame surface the API exposes.
type CameraPipeline interface {
	ProcessImage(ctx context.Context, img *recognition.Image, sourceLanguage, targetLanguage string) ([]camera.TranslatedTextBlock, error)
}

// HistoryStore is the conversation-history surface the API exposes.
type HistoryStore interface {
	UpsertTurn(ctx context.Context, turn persistence.ConversationTurn) error
	ListTurns(ctx context.Context, limit int) ([]persistence.ConversationTurn, error)
	DeleteTurn(ctx context.Context, timestamp time.Time) error
	DeleteAllTurns(ctx context.Context) error
	Subscribe() (<-chan struct{}, func())
}

type Server struct {
	translator TranslationService
	pipeline   CameraPipeline
	manager    *download.Manager
	history    HistoryStore
	conditions translation.DownloadConditions

	mux    *http.ServeMux
	server *http.Server
}

func NewServer(
	translator TranslationService,
	pipeline CameraPipeline,
	manager *download.Manager,
	history HistoryStore,
	conditions translation.DownloadConditions,
) *Server {
	s := &Server{
		translator: translator,
		pipeline:   pipeline,
		manager:    manager,
		history:    history,
		conditions: conditions,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/translate", s.handleTranslate)
	s.mux.HandleFunc("POST /api/camera", s.handleCamera)

	s.mux.HandleFunc("GET /api/languages", s.handleListLanguages)
	s.mux.HandleFunc("POST /api/languages/refresh", s.handleRefreshLanguages)
	s.mux.HandleFunc("POST /api/languages/{code}/download", s.handleDownloadLanguage)
	s.mux.HandleFunc("POST /api/languages/{code}/cancel", s.handleCancelDownload)
	s.mux.HandleFunc("DELETE /api/languages/{code}", s.handleDeleteLanguage)
	s.mux.HandleFunc("GET /api/languages/stream", s.handleLanguageStream)

	s.mux.HandleFunc("GET /api/history", s.handleListHistory)
	s.mux.HandleFunc("DELETE /api/history/{ts}", s.handleDeleteHistoryTurn)
	s.mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	s.mux.HandleFunc("GET /api/history/stream", s.handleHistoryStream)
}

// Handler wraps the routes with request-ID and access-log middleware.
func (s *Server) Handler() http.Handler {
	return withRequestID(withAccessLog(s.mux))
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("HTTP API listening on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("%s %s (%s) in %v", r.Method, r.URL.Path, w.Header().Get("X-Request-ID"), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
