package cmd

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/surge-downloader/batchget/internal/config"
	"github.com/surge-downloader/batchget/internal/core"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// maxRequestBody bounds POST /batch bodies
const maxRequestBody = 4 << 20

// APIHandler handles HTTP API requests
type APIHandler struct {
	service    core.BatchService
	port       int
	defaultDir string
}

// NewAPIHandler creates a new APIHandler
func NewAPIHandler(service core.BatchService, port int, defaultDir string) *APIHandler {
	return &APIHandler{
		service:    service,
		port:       port,
		defaultDir: defaultDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Debug("Failed to encode response: %v", err)
	}
}

func writeAPIError(w http.ResponseWriter, apiErr *core.APIError) {
	writeJSON(w, apiErr.Status, apiErr)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return false
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return true
}

// Health check endpoint (Public)
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"port":    h.port,
		"version": Version,
	})
}

// Submit endpoint (Protected): starts a batch
func (h *APIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}

	var req core.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeAPIError(w, &core.APIError{Status: http.StatusBadRequest, Code: core.CodeBadRequest, Message: "Invalid JSON: " + err.Error()})
		return
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			utils.Debug("Error closing body: %v", err)
		}
	}()

	if strings.TrimSpace(req.Dir) == "" {
		req.Dir = h.defaultDir
	}
	utils.Debug("Received batch request: %d URIs into %s", len(req.URIs), req.Dir)

	res, err := h.service.Submit(r.Context(), req.URIs, req.Dir)
	if err != nil {
		apiErr := core.NewAPIError(err)
		apiErr.Result = res
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) control(w http.ResponseWriter, r *http.Request, fn func() error, status string) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	if err := fn(); err != nil {
		writeAPIError(w, core.NewAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Pause endpoint (Protected)
func (h *APIHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.service.PauseAll, "paused")
}

// Resume endpoint (Protected)
func (h *APIHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.service.ResumeAll, "resumed")
}

// Stop endpoint (Protected)
func (h *APIHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.service.Stop, "stopping")
}

// Status endpoint (Protected)
func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	st, err := h.service.Status()
	if err != nil {
		writeAPIError(w, core.NewAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Events endpoint (Protected): snapshots as server-sent events, ending after
// the final snapshot of a batch
func (h *APIHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream, cleanup, err := h.service.StreamSnapshots(r.Context())
	if err != nil {
		http.Error(w, "Failed to subscribe to snapshots", http.StatusInternalServerError)
		return
	}
	defer cleanup()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case snap, ok := <-stream:
			if !ok {
				return
			}
			if err := writeSnapshotEvent(w, snap); err != nil {
				utils.Debug("Error writing event: %v", err)
				return
			}
			flusher.Flush()
			if snap.Final {
				return
			}
		}
	}
}

// writeSnapshotEvent writes one SSE frame:
//
//	event: snapshot
//	data: <json>
func writeSnapshotEvent(w http.ResponseWriter, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func newAPIMux(handler *APIHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/batch", handler.Submit)
	mux.HandleFunc("/pause", handler.Pause)
	mux.HandleFunc("/resume", handler.Resume)
	mux.HandleFunc("/stop", handler.Stop)
	mux.HandleFunc("/status", handler.Status)
	mux.HandleFunc("/events", handler.Events)
	return mux
}

// newAPIServer wires the API behind auth and CORS (CORS outermost so that
// 401 responses carry its headers)
func newAPIServer(port int, defaultDir string, service core.BatchService, authToken string) *http.Server {
	handler := NewAPIHandler(service, port, defaultDir)
	return &http.Server{Handler: corsMiddleware(authMiddleware(authToken, newAPIMux(handler)))}
}

// startHTTPServer serves the API on an existing listener in the background
func startHTTPServer(ln net.Listener, port int, defaultDir string, service core.BatchService, authToken string) *http.Server {
	server := newAPIServer(port, defaultDir, service, authToken)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Debug("HTTP server error: %v", err)
		}
	}()
	return server
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Allow health check without auth
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			providedToken := strings.TrimPrefix(authHeader, "Bearer ")
			if len(providedToken) == len(token) && subtle.ConstantTimeCompare([]byte(providedToken), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// ensureAuthToken returns the configured token, or the one stored in the
// token file, generating it on first use.
func ensureAuthToken(settings *config.Settings) string {
	if settings != nil && settings.General.APIToken != "" {
		return settings.General.APIToken
	}

	tokenFile := filepath.Join(config.GetAppDir(), "token")
	data, err := os.ReadFile(tokenFile)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}

	token := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0o755); err != nil {
		utils.Debug("Failed to create token directory: %v", err)
	}
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		utils.Debug("Failed to write token file: %v", err)
	}
	return token
}
