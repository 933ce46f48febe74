package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/collector"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/httpx"
	"github.com/smukkama/hive-monitor/internal/model"
	"github.com/smukkama/hive-monitor/internal/pipeline"
	"github.com/smukkama/hive-monitor/internal/prediction"
)

// Pipeline runs collection, prediction and alerting on demand
type Pipeline interface {
	Collect(ctx context.Context, hiveID int) (*pipeline.CycleOutcome, error)
	PredictThreat(ctx context.Context, req *prediction.ThreatRequest) (*prediction.ThreatResult, *alertstore.Alert, error)
	AssessPerformance(ctx context.Context, hiveID int) (*prediction.PerformanceResult, []*alertstore.Alert, error)
	ThreatTrend(hiveID int) *prediction.Trend
}

// CollectorStatus reports orchestrator state
type CollectorStatus interface {
	Status() collector.Status
	InFlight(hiveID int) bool
}

// Hives is the hive registry
type Hives interface {
	UpdateHive(ctx context.Context, id int, name *string, lat, lon *float64) (bool, error)
	GetAlignmentStats(ctx context.Context, hiveID int, since time.Time) (*database.AlignmentStats, error)
	GetWeeklyAggregate(ctx context.Context, hiveID, isoYear, isoWeek int) (*database.WeeklyAggregate, error)
}

// Alerts is the alert store surface
type Alerts interface {
	Backend() string
	List(f alertstore.Filter) []*alertstore.Alert
	Summary() alertstore.Summary
	Acknowledge(ctx context.Context, id, by string) (bool, error)
	Resolve(ctx context.Context, id, by, notes string) (bool, error)
	ExportXLSX(w io.Writer) error
}

// Handler serves the HTTP API
type Handler struct {
	pipeline Pipeline
	status   CollectorStatus
	hives    Hives
	alerts   Alerts
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(p Pipeline, status CollectorStatus, hives Hives, alerts Alerts, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline: p,
		status:   status,
		hives:    hives,
		alerts:   alerts,
		logger:   logger,
		now:      time.Now,
	}
}

// Router builds the chi router
func (h *Handler) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpx.RequestLogger(h.logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "hived", "alert_backend": h.alerts.Backend()})
	})

	router.Route("/api/hives/{id}", func(r chi.Router) {
		r.Post("/collect", h.collect)
		r.Get("/status", h.hiveStatus)
		r.Put("/", h.updateHive)
		r.Get("/alignment", h.alignment)
		r.Get("/performance", h.performance)
		r.Get("/threats/trend", h.threatTrend)
		r.Get("/weekly/{year}/{week}", h.weekly)
	})

	router.Post("/api/threats/predict", h.predictThreat)

	router.Route("/api/alerts", func(r chi.Router) {
		r.Get("/", h.listAlerts)
		r.Get("/summary", h.alertSummary)
		r.Get("/export.xlsx", h.exportAlerts)
		r.Post("/{id}/acknowledge", h.acknowledge)
		r.Post("/{id}/resolve", h.resolve)
	})

	return router
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}

	out, err := h.pipeline.Collect(r.Context(), hiveID)
	switch {
	case errors.Is(err, collector.ErrCycleInFlight):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case err != nil && out != nil:
		httpx.WriteJSON(w, http.StatusInternalServerError, out)
	case err != nil:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) hiveStatus(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"hive_id":    hiveID,
		"in_flight":  h.status.InFlight(hiveID),
		"collection": h.status.Status(),
	})
}

type updateHiveRequest struct {
	Name      *string  `json:"name"`
	Latitude  *float64 `json:"location_lat"`
	Longitude *float64 `json:"location_lng"`
}

func (h *Handler) updateHive(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}

	var req updateHiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90) ||
		req.Longitude != nil && (*req.Longitude < -180 || *req.Longitude > 180) {
		httpx.WriteError(w, http.StatusBadRequest, "location out of range")
		return
	}

	found, err := h.hives.UpdateHive(r.Context(), hiveID, req.Name, req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("Failed to update hive", zap.Int("hive_id", hiveID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update hive")
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, "hive not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "hive_id": hiveID})
}

func (h *Handler) alignment(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}
	hours := parsePositive(r.URL.Query().Get("hours"), 24)

	stats, err := h.hives.GetAlignmentStats(r.Context(), hiveID, h.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		h.logger.Error("Failed to load alignment stats", zap.Int("hive_id", hiveID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load alignment stats")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"hive_id": hiveID, "hours": hours, "alignment": stats})
}

// weekly serves a materialized hive-week, the labelled row an external trainer consumes
func (h *Handler) weekly(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}
	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	week, werr := strconv.Atoi(chi.URLParam(r, "week"))
	if yerr != nil || werr != nil || week < 1 || week > 53 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid ISO year or week")
		return
	}

	agg, err := h.hives.GetWeeklyAggregate(r.Context(), hiveID, year, week)
	if err != nil {
		h.logger.Error("Failed to load weekly aggregate", zap.Int("hive_id", hiveID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load weekly aggregate")
		return
	}
	if agg == nil {
		httpx.WriteError(w, http.StatusNotFound, "weekly aggregate not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, agg)
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}

	result, alerts, err := h.pipeline.AssessPerformance(r.Context(), hiveID)
	if err != nil {
		writePredictionError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"prediction": result, "alerts": nonNil(alerts)})
}

func (h *Handler) threatTrend(w http.ResponseWriter, r *http.Request) {
	hiveID, ok := hiveParam(w, r)
	if !ok {
		return
	}
	trend := h.pipeline.ThreatTrend(hiveID)
	if trend == nil {
		httpx.WriteError(w, http.StatusNotFound, "threat trend not tracked")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, trend)
}

func (h *Handler) predictThreat(w http.ResponseWriter, r *http.Request) {
	var req prediction.ThreatRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, alert, err := h.pipeline.PredictThreat(r.Context(), &req)
	if err != nil {
		writePredictionError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "prediction": result, "alert": alert})
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts := h.alerts.List(f)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"count": len(alerts), "alerts": nonNil(alerts)})
}

func (h *Handler) alertSummary(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.alerts.Summary())
}

func (h *Handler) exportAlerts(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.xlsx"`)
	if err := h.alerts.ExportXLSX(w); err != nil {
		h.logger.Error("Failed to export alerts", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to export alerts")
	}
}

type lifecycleRequest struct {
	By    string `json:"by"`
	Notes string `json:"notes"`
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodeLifecycle(w, r)
	if !ok {
		return
	}
	found, err := h.alerts.Acknowledge(r.Context(), id, req.By)
	h.writeLifecycle(w, id, "acknowledged", found, err)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodeLifecycle(w, r)
	if !ok {
		return
	}
	found, err := h.alerts.Resolve(r.Context(), id, req.By, req.Notes)
	h.writeLifecycle(w, id, "resolved", found, err)
}

func (h *Handler) writeLifecycle(w http.ResponseWriter, id, status string, found bool, err error) {
	if err != nil {
		h.logger.Error("Failed to update alert", zap.String("alert_id", id), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	if !found {
		httpx.WriteError(w, http.StatusNotFound, "alert not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "alert_id": id, "status": status})
}

// decodeLifecycle reads an optional body
func decodeLifecycle(w http.ResponseWriter, r *http.Request) (lifecycleRequest, bool) {
	var req lifecycleRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func writePredictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prediction.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrModelUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func hiveParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid hive id")
		return 0, false
	}
	return id, true
}

func parseFilter(r *http.Request) (alertstore.Filter, error) {
	q := r.URL.Query()
	f := alertstore.Filter{Limit: parsePositive(q.Get("limit"), 100)}

	if raw := q.Get("hive_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return f, errors.New("invalid hive_id")
		}
		f.HiveID = &id
	}
	if raw := q.Get("priority"); raw != "" {
		p, ok := alertstore.ParsePriority(raw)
		if !ok {
			return f, errors.New("invalid priority")
		}
		f.Priority = p
	}
	switch s := alertstore.Status(q.Get("status")); s {
	case "", alertstore.StatusActive, alertstore.StatusResolved:
		f.Status = s
	default:
		return f, errors.New("invalid status")
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid since, expected RFC3339")
		}
		f.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("invalid until, expected RFC3339")
		}
		f.Until = t
	}
	return f, nil
}

func parsePositive(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func nonNil(alerts []*alertstore.Alert) []*alertstore.Alert {
	if alerts == nil {
		return []*alertstore.Alert{}
	}
	return alerts
}
