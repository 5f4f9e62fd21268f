package mcphttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/i2y/sqlgenmcp/internal/adapter/outbound/openapi"
	"github.com/i2y/sqlgenmcp/internal/domain"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

// MaxBodyBytes caps the size of a call request body.
const MaxBodyBytes = 1 << 20

// Handlers struct holds dependencies for the HTTP handlers.
type Handlers struct {
	listUC     *usecase.ListOperationsUseCase
	dispatcher usecase.CallDispatcher
	docGen     *openapi.DocumentGenerator
	logger     *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(
	listUC *usecase.ListOperationsUseCase,
	dispatcher usecase.CallDispatcher,
	docGen *openapi.DocumentGenerator,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		listUC:     listUC,
		dispatcher: dispatcher,
		docGen:     docGen,
		logger:     logger.With("component", "mcphttp_handler"),
	}
}

// Router builds the admin HTTP router.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.handleHealth)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/operations", h.handleListOperations)
		r.Post("/operations/{name}/call", h.handleCallOperation)
		r.Get("/openapi.json", h.handleOpenAPI)
	})
	return r
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("Handled admin request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OperationsResponse is the body of GET /admin/operations.
type OperationsResponse struct {
	Operations []domain.Operation `json:"operations"`
}

func (h *Handlers) handleListOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OperationsResponse{Operations: h.listUC.Execute()})
}

// handleCallOperation implements POST /admin/operations/{name}/call.
// The request body is the arguments object. Structured failures are returned
// with status 200 like successes; undecodable bodies get 400 and bodies over
// MaxBodyBytes get 413.
func (h *Handlers) handleCallOperation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Call request body too large", slog.String("operation", name), slog.Int64("limit", tooLarge.Limit))
			http.Error(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("Failed to read call request body", slog.Any("error", err))
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	var args any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			h.logger.Warn("Failed to decode call request body", slog.String("operation", name), slog.Any("error", err))
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	h.logger.Info("Received call request", slog.String("operation", name))
	result := h.dispatcher.HandleCall(r.Context(), domain.CallRequest{OperationName: name, Arguments: args})
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.docGen.Generate(h.listUC.Execute()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
