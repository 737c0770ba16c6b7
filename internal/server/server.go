// Package server exposes the chat pipeline and conversation CRUD over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/db"
	"verse-rag/internal/rag"
	"verse-rag/internal/ragerr"
)

const listLimit = 50

// Messages shown to users in place of raw errors.
const (
	msgIndexing = "The verse index is still initializing. Please try again shortly."
	msgFailure  = "Sorry, something went wrong while answering your question. Please try again."
)

type Server struct {
	service     *rag.Service
	store       *db.Store
	ready       func() bool
	addr        string
	corsOrigins string
}

func New(service *rag.Service, store *db.Store, ready func() bool, addr, corsOrigins string) *Server {
	return &Server{service: service, store: store, ready: ready, addr: addr, corsOrigins: corsOrigins}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.handleUpdateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.cors(logging(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.service.Chat(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, ragerr.ErrIndexNotReady) {
			writeError(w, http.StatusServiceUnavailable, msgIndexing)
			return
		}
		// One apologetic fallback for every unrecovered failure; the detail
		// stays in the logs.
		log.Error().Err(err).Msg("Chat request failed")
		writeError(w, http.StatusInternalServerError, msgFailure)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListConversations(r.Context(), listLimit)
	if err != nil {
		log.Error().Err(err).Msg("Listing conversations failed")
		writeError(w, http.StatusInternalServerError, msgFailure)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	detail, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Error().Err(err).Msg("Loading conversation failed")
		writeError(w, http.StatusInternalServerError, msgFailure)
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.store.UpdateConversationTitle(r.Context(), r.PathValue("id"), title); err != nil {
		log.Error().Err(err).Msg("Updating conversation failed")
		writeError(w, http.StatusInternalServerError, msgFailure)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		log.Error().Err(err).Msg("Deleting conversation failed")
		writeError(w, http.StatusInternalServerError, msgFailure)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	index := "ready"
	if !s.ready() {
		status = "initializing"
		index = "indexing"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "index": index})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).Msg("Request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
