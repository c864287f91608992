package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lumastack/retail-copilot/internal/capability"
	"github.com/lumastack/retail-copilot/internal/orchestrator"
	"go.uber.org/zap"
)

// Handler exposes the orchestration engine over HTTP.
type Handler struct {
	supervisor *orchestrator.Supervisor
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(supervisor *orchestrator.Supervisor, logger *zap.Logger) *Handler {
	return &Handler{supervisor: supervisor, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/capabilities", h.listCapabilities)
		r.Post("/query", h.processQuery)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "retail-copilot"})
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]string{
		{"name": string(capability.NameKnowledge), "description": "answers from retail domain knowledge"},
		{"name": string(capability.NameQuery), "description": "answers with warehouse data via generated SQL"},
	})
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Steps []orchestrator.Step `json:"steps"`
}

func (h *Handler) processQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	// The trace handed back starts with the user's own step so a client can
	// render the whole exchange.
	steps := []orchestrator.Step{orchestrator.NewStep(orchestrator.RoleUser, req.Question, nil)}
	steps = append(steps, h.supervisor.ProcessQuery(r.Context(), req.Question)...)

	writeJSON(w, http.StatusOK, queryResponse{Steps: steps})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
