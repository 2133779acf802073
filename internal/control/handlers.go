package control

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/session"
)

// StartSessionRequest is the body of POST /sessions. Mode and DryRun
// override the server's configured defaults for this session only; Profile
// is an opaque reference resolved by the session factory. When Run is set
// the autonomous loop starts immediately and progress is read via status.
type StartSessionRequest struct {
	Name    string `json:"name"`
	Query   string `json:"query,omitempty"`
	Profile string `json:"profile,omitempty"`
	Mode    string `json:"mode,omitempty"`
	DryRun  *bool  `json:"dry_run,omitempty"`
	Run     bool   `json:"run,omitempty"`
}

// SessionFactory builds a session for one start request, wiring whatever
// driver and model client the deployment uses. On error nothing may leak;
// on success the registry takes ownership.
type SessionFactory func(ctx context.Context, req StartSessionRequest) (*session.Session, error)

type apiResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handlers serves the control API over a session registry.
type Handlers struct {
	registry   *session.Registry
	newSession SessionFactory
	logger     *zap.Logger
}

// NewHandlers wires the route handlers. The factory may be nil, in which
// case POST /sessions reports the API as read-only.
func NewHandlers(registry *session.Registry, factory SessionFactory, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry:   registry,
		newSession: factory,
		logger:     logger.Named("handlers"),
	}
}

// RegisterRoutes mounts the session and catalog routes on the given router.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.startSession)
	r.Get("/sessions", h.listSessions)
	r.Get("/sessions/{name}", h.getSession)
	r.Delete("/sessions/{name}", h.removeSession)
	r.Post("/sessions/{name}/observe", h.observe)
	r.Post("/sessions/{name}/decide", h.decide)
	r.Post("/sessions/{name}/execute", h.execute)
	r.Post("/sessions/{name}/step", h.step)
	r.Get("/catalog", h.catalog)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request) {
	if h.newSession == nil {
		respondError(w, http.StatusServiceUnavailable, "session creation is not available on this server")
		return
	}

	var req StartSessionRequest
	if err := json.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "session name is required")
		return
	}

	s, err := h.newSession(r.Context(), req)
	if err != nil {
		var cfgErr *schemas.ConfigError
		if errors.As(err, &cfgErr) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.registry.Add(s); err != nil {
		_ = s.Close()
		if errors.Is(err, session.ErrExists) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("Session started",
		zap.String("session", req.Name),
		zap.String("run_id", s.RunID()),
		zap.Bool("run", req.Run),
		zap.String("subject", Subject(r.Context())),
	)

	if req.Run {
		go func() {
			if _, err := s.Run(context.Background()); err != nil {
				h.logger.Error("Session loop failed",
					zap.String("session", s.Name()), zap.Error(err))
			}
		}()
	}
	respondJSON(w, http.StatusCreated, s.Status())
}

func (h *Handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.List()
	statuses := make([]session.Status, len(sessions))
	for i, s := range sessions {
		statuses[i] = s.Status()
	}
	respondJSON(w, http.StatusOK, statuses)
}

func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Status())
}

func (h *Handlers) removeSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.registry.Remove(name); err != nil {
		respondSessionError(w, err)
		return
	}
	h.logger.Info("Session removed",
		zap.String("session", name),
		zap.String("subject", Subject(r.Context())),
	)
	respondJSON(w, http.StatusOK, map[string]string{"name": name, "state": "closed"})
}

func (h *Handlers) observe(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(ctx context.Context, s *session.Session) (*schemas.Packet, error) {
		return s.Observe(ctx)
	})
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(ctx context.Context, s *session.Session) (*schemas.Packet, error) {
		return s.DecideOnce(ctx)
	})
}

func (h *Handlers) execute(w http.ResponseWriter, r *http.Request) {
	var plan schemas.ActionPlan
	if err := json.ConfigCompatibleWithStandardLibrary.NewDecoder(r.Body).Decode(&plan); err != nil {
		respondError(w, http.StatusBadRequest, "invalid plan body: "+err.Error())
		return
	}
	if plan.ActionID == "" {
		respondError(w, http.StatusBadRequest, "plan action is required")
		return
	}
	h.sessionOp(w, r, func(ctx context.Context, s *session.Session) (*schemas.Packet, error) {
		return s.ExecutePlan(ctx, plan)
	})
}

func (h *Handlers) step(w http.ResponseWriter, r *http.Request) {
	h.sessionOp(w, r, func(ctx context.Context, s *session.Session) (*schemas.Packet, error) {
		return s.Step(ctx)
	})
}

func (h *Handlers) catalog(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"catalog_version": schemas.CatalogVersion,
		"actions":         schemas.Catalog(),
	})
}

// sessionOp looks up the named session, runs one control-plane operation on
// it, and writes the resulting packet.
func (h *Handlers) sessionOp(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Session) (*schemas.Packet, error)) {
	s, err := h.registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	packet, err := op(r.Context(), s)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, packet)
}

// respondSessionError maps session and operation failures onto HTTP
// statuses: unknown name 404, busy or closed 409, rejected plan 400,
// device transport 502, anything else 500.
func respondSessionError(w http.ResponseWriter, err error) {
	var vf *schemas.ValidationFailure
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrClosed):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &vf):
		respondError(w, http.StatusBadRequest, err.Error())
	case schemas.IsTransport(err):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	writeResponse(w, statusCode, apiResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	writeResponse(w, statusCode, apiResponse{Status: "error", Error: message})
}

func writeResponse(w http.ResponseWriter, statusCode int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(resp)
}
