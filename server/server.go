// Package server exposes the chat service over HTTP with server-sent events
// for the streaming endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/chatrelay/chat"
	"github.com/hupe1980/chatrelay/conversation"
	"github.com/hupe1980/chatrelay/core"
	"github.com/hupe1980/chatrelay/logging"
)

// MaxUploadSize bounds the multipart request body on initialize.
const MaxUploadSize = 12 << 20

// Options configures a Server.
type Options struct {
	// Logger receives request diagnostics. Defaults to NoOp.
	Logger logging.Logger

	// ReadHeaderTimeout for the underlying http.Server.
	ReadHeaderTimeout time.Duration
}

// Server routes HTTP requests to the chat service.
type Server struct {
	service       *chat.Service
	conversations *conversation.Manager
	logger        logging.Logger
	httpServer    *http.Server
}

// New creates a Server for the given service and manager.
func New(addr string, service *chat.Service, conversations *conversation.Manager, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		service:       service,
		conversations: conversations,
		logger:        opts.Logger,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the route table. Exposed separately so tests can drive the
// mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/chat/send", s.handleSend)
	mux.HandleFunc("POST /api/chat/stream", s.handleStream)
	mux.HandleFunc("POST /api/chat/conversations/{id}/send", s.handleSessionSend)
	mux.HandleFunc("POST /api/chat/conversations/{id}/stream", s.handleSessionStream)
	mux.HandleFunc("GET /api/chat/conversations", s.handleList)
	mux.HandleFunc("GET /api/chat/conversations/{id}/status", s.handleStatus)
	mux.HandleFunc("DELETE /api/chat/conversations/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/chat/providers", s.handleProviders)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// ListenAndServe starts serving and blocks until the listener fails or the
// server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeInitialize(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.service.Initialize(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decodeInitialize accepts either multipart form data (file uploads) or a
// JSON body (text context).
func (s *Server) decodeInitialize(r *http.Request) (conversation.CreateRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return s.decodeInitializeMultipart(r)
	}

	var body struct {
		Context      string        `json:"context"`
		SystemPrompt string        `json:"systemPrompt"`
		FirstMessage string        `json:"firstMessage"`
		Settings     core.Settings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return conversation.CreateRequest{}, core.Validationf("invalid request body: %v", err)
	}
	return conversation.CreateRequest{
		Context:      body.Context,
		SystemPrompt: body.SystemPrompt,
		FirstMessage: body.FirstMessage,
		Settings:     body.Settings,
	}, nil
}

func (s *Server) decodeInitializeMultipart(r *http.Request) (conversation.CreateRequest, error) {
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return conversation.CreateRequest{}, core.Validationf("invalid multipart body: %v", err)
	}

	req := conversation.CreateRequest{
		Context:      r.FormValue("context"),
		SystemPrompt: r.FormValue("systemPrompt"),
		FirstMessage: r.FormValue("firstMessage"),
		Settings:     parseSettings(r),
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		content, err := io.ReadAll(io.LimitReader(file, MaxUploadSize))
		if err != nil {
			return conversation.CreateRequest{}, core.Validationf("failed to read uploaded file: %v", err)
		}
		req.File = &conversation.FileUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		}
	}

	return req, nil
}

func parseSettings(r *http.Request) core.Settings {
	settings := core.Settings{Model: r.FormValue("model")}
	if v := r.FormValue("temperature"); v != "" {
		settings.Temperature, _ = strconv.ParseFloat(v, 64)
	}
	if v := r.FormValue("maxTokens"); v != "" {
		settings.MaxTokens, _ = strconv.Atoi(v)
	}
	return settings
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.Validationf("invalid request body: %v", err))
		return
	}

	resp, err := s.service.Send(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.Validationf("invalid request body: %v", err))
		return
	}

	chunks, err := s.service.Stream(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streamSSE(w, r, chunks)
}

type sessionTurnRequest struct {
	Message  string         `json:"message"`
	Settings *core.Settings `json:"settings,omitempty"`
}

func (s *Server) handleSessionSend(w http.ResponseWriter, r *http.Request) {
	var req sessionTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.Validationf("invalid request body: %v", err))
		return
	}

	resp, err := s.service.SendSession(r.Context(), r.PathValue("id"), req.Message, req.Settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	var req sessionTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, core.Validationf("invalid request body: %v", err))
		return
	}

	chunks, err := s.service.StreamSession(r.Context(), r.PathValue("id"), req.Message, req.Settings)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streamSSE(w, r, chunks)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.conversations.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.conversations.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.conversations.Delete(r.Context(), r.PathValue("id")) {
		s.writeError(w, core.ErrNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Providers(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := s.service.Providers(r.Context())
	healthy := false
	for _, p := range providers {
		if p.IsAvailable {
			healthy = true
			break
		}
	}
	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":    status,
		"providers": providers,
	})
}

// streamSSE drains the chunk channel into the response as server-sent events,
// one JSON payload per "data:" line, terminated by "data: [DONE]". Client
// disconnect cancels the request context, which closes the channel upstream.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, chunks <-chan core.StreamChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Error("Failed to marshal stream chunk", "error", err)
			break
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		status    = http.StatusInternalServerError
		retryable bool
	)

	var validationErr *core.ValidationError
	var cacheErr *core.CacheError
	var upstreamErr *core.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cacheErr):
		status = http.StatusServiceUnavailable
		retryable = true
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	} else {
		s.logger.Debug("Request rejected", "status", status, "error", err)
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: retryable})
}
