package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/patlar104/GlobalTranslation/internal/apperr"
	"github.com/patlar104/GlobalTranslation/internal/languages"
	"github.com/patlar104/GlobalTranslation/internal/persistence"
	"github.com/patlar104/GlobalTranslation/internal/recognition"
	"github.com/patlar104/GlobalTranslation/pkg/log"
)

type translateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	SourceLang     string `json:"sourceLang"`
	TargetLang     string `json:"targetLang"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := req.Source
	if source == "" || source == "auto" {
		detected, ok := languages.Detect(req.Text)
		if !ok {
			writeError(w, http.StatusBadRequest, "could not detect source language; specify one explicitly")
			return
		}
		source = detected
	}

	translated, err := s.translator.Translate(r.Context(), req.Text, source, req.Target, s.conditions)
	if err != nil {
		writeAppError(w, err)
		return
	}

	// History is best-effort bookkeeping; same-language echoes are not
	// recordable turns.
	if turn, terr := persistence.NewConversationTurn(req.Text, translated, source, req.Target); terr == nil {
		if serr := s.history.UpsertTurn(r.Context(), turn); serr != nil {
			log.Warn("Failed to save conversation turn: %v", serr)
		}
	}

	writeJSON(w, http.StatusOK, translateResponse{
		TranslatedText: translated,
		SourceLang:     source,
		TargetLang:     req.Target,
	})
}

type cameraRequest struct {
	Image  string `json:"image"` // base64
	Format string `json:"format"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image must be base64 encoded")
		return
	}

	img := &recognition.Image{Data: data, Format: req.Format}
	blocks, err := s.pipeline.ProcessImage(r.Context(), img, req.Source, req.Target)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": s.manager.Models()})
}

func (s *Server) handleRefreshLanguages(w http.ResponseWriter, r *http.Request) {
	s.manager.RefreshLanguages(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"languages": s.manager.Models()})
}

func (s *Server) handleDownloadLanguage(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !languages.IsSupported(code) {
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}
	s.manager.DownloadLanguage(code)
	writeJSON(w, http.StatusAccepted, map[string]string{"code": code})
}

func (s *Server) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	s.manager.CancelDownload(r.PathValue("code"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLanguage(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if err := s.manager.DeleteLanguage(r.Context(), code); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	turns, err := s.history.ListTurns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleDeleteHistoryTurn(w http.ResponseWriter, r *http.Request) {
	millis, err := strconv.ParseInt(r.PathValue("ts"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "timestamp must be unix milliseconds")
		return
	}
	if err := s.history.DeleteTurn(r.Context(), time.UnixMilli(millis)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete turn")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.DeleteAllTurns(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeAppError maps the error taxonomy onto HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	errorType := apperr.Classify(err)
	status := http.StatusInternalServerError
	switch errorType {
	case apperr.ErrInvalidInput:
		status = http.StatusBadRequest
	case apperr.ErrNetwork:
		status = http.StatusBadGateway
	case apperr.ErrModelUnavailable:
		status = http.StatusConflict
	case apperr.ErrResourceExhausted:
		status = http.StatusInsufficientStorage
	}
	log.Error("Request failed: %v", err)
	writeError(w, status, apperr.UserMessage(errorType))
}
