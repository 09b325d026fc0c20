package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/modelhub/internal/hub"
	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	hub    *hub.Service
	rag    *rag.Engine
	logger *zap.Logger
}

// NewHandler creates a new API handler. engine may be nil, in which case the
// knowledge-base routes answer 503.
func NewHandler(svc *hub.Service, engine *rag.Engine, logger *zap.Logger) *Handler {
	return &Handler{hub: svc, rag: engine, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/providers", h.listProviders)
		r.Get("/models/{provider}", h.providerModels)

		r.Post("/route", h.route)
		r.Post("/classify", h.classify)
		r.Post("/chat", h.chat)
		r.Post("/chat/stream", h.chatStream)

		r.Route("/rag", func(r chi.Router) {
			r.Use(h.requireRAG)
			r.Post("/add", h.addDocument)
			r.Post("/query", h.queryDocuments)
			r.Get("/stats", h.ragStats)
			r.Delete("/clear", h.clearDocuments)
			r.Delete("/documents/{id}", h.deleteDocument)
			r.Delete("/sources", h.deleteSource)
			r.Delete("/sources/*", h.deleteSource)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"available_providers": h.hub.Available(),
	})
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Providers())
}

func (h *Handler) providerModels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "provider")
	p, ok := h.hub.Provider(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("provider %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":  p.ID,
		"models":    p.Models,
		"available": p.Available,
	})
}

type routeRequest struct {
	Message           string `json:"message"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, err := h.hub.Route(req.Message, req.PreferredProvider)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":            sel.Provider,
		"model":               sel.Model,
		"category":            sel.Category,
		"routing_explanation": h.hub.Explain(sel),
	})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]router.Category{"category": h.hub.Classify(req.Message)})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req hub.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := h.hub.Chat(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamEvent is one SSE data frame: metadata, content, error or done.
type streamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request) {
	var req hub.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sel, ch, err := h.hub.Stream(r.Context(), &req)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sendSSE(w, flusher, streamEvent{Type: "metadata", Data: map[string]interface{}{
		"provider": sel.Provider,
		"model":    sel.Model,
		"category": sel.Category,
	}})
	for c := range ch {
		if c.Err != nil {
			h.logger.Warn("stream interrupted", zap.String("provider", sel.Provider), zap.Error(c.Err))
			sendSSE(w, flusher, streamEvent{Type: "error", Data: c.Err.Error()})
			return
		}
		sendSSE(w, flusher, streamEvent{Type: "content", Data: c.Content})
	}
	sendSSE(w, flusher, streamEvent{Type: "done"})
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func (h *Handler) requireRAG(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rag == nil {
			writeError(w, http.StatusServiceUnavailable, "knowledge base not initialized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type addDocumentRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) addDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := h.rag.Ingest(r.Context(), req.Content, req.Metadata)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"doc_ids":      ids,
		"chunks_added": len(ids),
	})
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

func (h *Handler) queryDocuments(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	ans, err := h.rag.Query(r.Context(), req.Question, req.TopK)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"question": req.Question,
		"found":    ans.Found,
		"context":  ans.Context,
		"sources":  ans.Sources,
	})
}

func (h *Handler) ragStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rag.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) clearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := h.rag.Clear(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "knowledge base cleared"})
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.rag.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "doc_id": id})
}

// deleteSource takes the source from the rest of the path, so names with
// slashes work, or from the source query parameter.
func (h *Handler) deleteSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "*")
	if source == "" {
		source = r.URL.Query().Get("source")
	}
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	n, err := h.rag.DeleteSource(r.Context(), source)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "source": source, "deleted": n})
}

// statusFor maps domain errors to HTTP status codes. Storage failures fall
// through to 500.
func statusFor(err error) int {
	var upstream *provider.UpstreamError
	switch {
	case errors.Is(err, hub.ErrEmptyMessage), errors.Is(err, rag.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, hub.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, router.ErrNoProviderAvailable), errors.Is(err, provider.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream), errors.Is(err, provider.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
