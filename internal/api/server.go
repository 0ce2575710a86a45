package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/golang/glog"

	"sharing/internal/auth"
	"sharing/internal/docstore"
	"sharing/pkg/types"
)

// Registry is the part of the connection registry the API reports on
type Registry interface {
	GetStats() map[string]int
}

// Reader is the read-only store surface the API serves
type Reader interface {
	Snapshot(ctx context.Context, collection string) (*types.CollectionSnapshot, error)
	GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error)
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP side of the document store: health and read-only document access
type Server struct {
	store     Reader
	registry  Registry
	authn     *auth.Authenticator
	router    *http.ServeMux
	startedAt time.Time
}

// NewServer wires the routes; authn may be nil to leave documents unprotected
func NewServer(store Reader, registry Registry, authn *auth.Authenticator) *Server {
	s := &Server{
		store:     store,
		registry:  registry,
		authn:     authn,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/documents", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleDocuments))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handle mounts an extra handler, such as the websocket endpoint, on the same mux
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.router.Handle(pattern, handler)
}

type DocumentsResponse struct {
	Collection string                   `json:"collection"`
	Seq        int64                    `json:"seq"`
	Documents  []types.DocumentSnapshot `json:"documents"`
}

type DocumentResponse struct {
	Collection string                  `json:"collection"`
	Document   *types.DocumentSnapshot `json:"document"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Store       string                 `json:"store"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleDocuments serves GET /api/documents?collection=<path>[&id=<doc>]
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.authorize(r); err != nil {
		s.sendError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	collection := r.URL.Query().Get("collection")
	id := r.URL.Query().Get("id")
	if collection == "" {
		s.sendError(w, "collection parameter is required", http.StatusBadRequest)
		return
	}

	if id != "" {
		if err := docstore.ValidatePath(collection, id); err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc, err := s.store.GetVersioned(r.Context(), collection, id)
		if err != nil {
			s.sendStoreError(w, err)
			return
		}
		if !doc.Exists {
			s.sendError(w, "Document not found", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(DocumentResponse{Collection: collection, Document: doc})
		return
	}

	snap, err := s.store.Snapshot(r.Context(), collection)
	if err != nil {
		s.sendStoreError(w, err)
		return
	}
	docs := snap.Documents
	if docs == nil {
		docs = []types.DocumentSnapshot{}
	}
	_ = json.NewEncoder(w).Encode(DocumentsResponse{Collection: collection, Seq: snap.Seq, Documents: docs})
}

// authorize requires a valid bearer token when tokens are verified
func (s *Server) authorize(r *http.Request) error {
	if s.authn == nil || !s.authn.Verifies() {
		return nil
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return fmt.Errorf("bearer token required")
	}
	if _, err := s.authn.VerifyCustomToken(token); err != nil {
		return err
	}
	return nil
}

func (s *Server) sendStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrInvalidPath):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, docstore.ErrStoreClosed):
		s.sendError(w, "Document store unavailable", http.StatusServiceUnavailable)
	default:
		glog.Errorf("[api] store read failed: %v", err)
		s.sendError(w, "Failed to read documents", http.StatusInternalServerError)
	}
}

// healthCheck serves GET /health; 503 when the store is unhealthy
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Store:       storeStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
		},
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows dashboards on any origin to read
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
