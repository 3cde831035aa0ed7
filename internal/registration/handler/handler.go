package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/genialityco/gen-live-web-sub000/internal/audit"
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/platform/middleware"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/service"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/httputil"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/device"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/metadata"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/requesttime"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

const (
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 10
)

// Service defines the visit operations the HTTP API exposes.
type Service interface {
	Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error)
	StartVisit(ctx context.Context, req service.StartRequest) (*service.VisitView, error)
	Get(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	UpdateValues(ctx context.Context, visitID id.VisitID, update models.ValueSet) (*service.VisitView, error)
	ChooseAccess(ctx context.Context, visitID id.VisitID, existing bool) (*service.VisitView, error)
	Back(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	Verify(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	UpdateInfo(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	Continue(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	Submit(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	Reset(ctx context.Context, visitID id.VisitID) (*service.VisitView, error)
	Close(ctx context.Context, visitID id.VisitID) error
	History(ctx context.Context, visitID id.VisitID) ([]audit.Event, error)
	SignOut(ctx context.Context, device id.DeviceID) error
}

// StartVisitRequest opens a visit. EventID is empty for organization-only
// registration.
type StartVisitRequest struct {
	OrgSlug string `json:"orgSlug"`
	EventID string `json:"eventId,omitempty"`
}

type UpdateValuesRequest struct {
	Values models.ValueSet `json:"values"`
}

type AccessRequest struct {
	Existing *bool `json:"existing"`
}

// HistoryEntry is one step of a visit as its visitor sees it.
type HistoryEntry struct {
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

type HistoryResponse struct {
	Events []HistoryEntry `json:"events"`
}

// Handler serves the registration visit API.
type Handler struct {
	logger  *slog.Logger
	visits  Service
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	device  device.Config
}

// New creates a registration Handler. A nil limiter leaves verify unthrottled.
func New(
	visits Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	limiter *middleware.RateLimiter,
	deviceCfg device.Config) *Handler {
	return &Handler{
		logger:  logger,
		visits:  visits,
		metrics: metrics,
		limiter: limiter,
		device:  deviceCfg,
	}
}

// Register registers the form and visit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.LatencyMiddleware(h.metrics))
	router.Use(device.Middleware(h.device))

	router.Get("/forms/{orgSlug}", h.handleGetForm)
	router.Delete("/session", h.handleSignOut)
	router.Post("/visits", h.handleStartVisit)
	router.Route("/visits/{visitID}", func(r chi.Router) {
		r.Get("/", h.handleGetVisit)
		r.Delete("/", h.handleCloseVisit)
		r.Get("/history", h.handleVisitHistory)
		r.Patch("/values", h.handleUpdateValues)
		r.Post("/access", h.handleChooseAccess)
		r.Post("/back", h.step("back", h.visits.Back))
		if h.limiter != nil {
			r.With(h.limiter.Middleware).Post("/verify", h.step("verify", h.visits.Verify))
		} else {
			r.Post("/verify", h.step("verify", h.visits.Verify))
		}
		r.Post("/summary/continue", h.step("continue", h.visits.Continue))
		r.Post("/summary/update", h.step("update info", h.visits.UpdateInfo))
		r.Post("/submit", h.step("submit", h.visits.Submit))
		r.Post("/reset", h.step("reset", h.visits.Reset))
	})

	r.Mount("/", router)
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug, err := id.ParseOrgSlug(chi.URLParam(r, "orgSlug"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	schema, err := h.visits.Form(ctx, slug)
	if err != nil {
		h.fail(ctx, w, "get form", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schema)
}

func (h *Handler) handleStartVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StartVisitRequest
	if !h.decode(w, r, &req) {
		return
	}
	slug, err := id.ParseOrgSlug(req.OrgSlug)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var eventID id.EventID
	if req.EventID != "" {
		if eventID, err = id.ParseEventID(req.EventID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	view, err := h.visits.StartVisit(ctx, service.StartRequest{
		OrgSlug: slug,
		EventID: eventID,
		Device:  requestcontext.DeviceID(ctx),
	})
	if err != nil {
		h.fail(ctx, w, "start visit", err)
		return
	}
	w.Header().Set("Location", "/visits/"+view.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGetVisit(w http.ResponseWriter, r *http.Request) {
	h.step("get visit", h.visits.Get)(w, r)
}

func (h *Handler) handleCloseVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}
	if err := h.visits.Close(ctx, visitID); err != nil {
		h.fail(ctx, w, "close visit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVisitHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}
	events, err := h.visits.History(ctx, visitID)
	if err != nil {
		h.fail(ctx, w, "visit history", err)
		return
	}
	resp := HistoryResponse{Events: make([]HistoryEntry, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, HistoryEntry{
			Action:    string(e.Action),
			At:        e.Timestamp,
			From:      e.From,
			To:        e.To,
			Outcome:   e.Outcome,
			SessionID: e.SessionID.String(),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleSignOut forgets the session bound to the calling device.
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.visits.SignOut(ctx, requestcontext.DeviceID(ctx)); err != nil {
		h.fail(ctx, w, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}
	var req UpdateValuesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Values) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "values are required"))
		return
	}
	view, err := h.visits.UpdateValues(ctx, visitID, req.Values)
	if err != nil {
		h.fail(ctx, w, "update values", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleChooseAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	visitID, ok := h.visitID(w, r)
	if !ok {
		return
	}
	var req AccessRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Existing == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "existing is required"))
		return
	}
	view, err := h.visits.ChooseAccess(ctx, visitID, *req.Existing)
	if err != nil {
		h.fail(ctx, w, "choose access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// step adapts a body-less visit operation to a handler.
func (h *Handler) step(name string, fn func(context.Context, id.VisitID) (*service.VisitView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		visitID, ok := h.visitID(w, r)
		if !ok {
			return
		}
		view, err := fn(ctx, visitID)
		if err != nil {
			h.fail(ctx, w, name, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) visitID(w http.ResponseWriter, r *http.Request) (id.VisitID, bool) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VisitID{}, false
	}
	return visitID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// fail logs at a level matching the failure and writes the mapped error.
// A request deadline surfaces as a timeout.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.DeadlineExceeded) && dErrors.CodeOf(err) == dErrors.CodeInternal {
		err = dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	}
	requestID := middleware.GetRequestID(ctx)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
