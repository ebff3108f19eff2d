package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/engine/graph"
	"github.com/WessleyAI/routes-aggregator/engine/service"
	"github.com/WessleyAI/routes-aggregator/engine/snapshot"
	"github.com/WessleyAI/routes-aggregator/pkg/config"
	"github.com/WessleyAI/routes-aggregator/pkg/metrics"
	"github.com/WessleyAI/routes-aggregator/pkg/mid"
	"github.com/WessleyAI/routes-aggregator/pkg/resilience"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultLanguage   = "ua"
	defaultSearchMode = "STARTS_WITH"
	gzipLevel         = 6
)

// routesService is the part of service.Service the handlers use.
type routesService interface {
	GetStation(ctx context.Context, domainID string) (*domain.Station, error)
	FindStations(ctx context.Context, names []service.StationName, mode string, limit int) ([]*domain.Station, error)
	GetRoute(ctx context.Context, domainID string) (*domain.Route, error)
	FindRoutes(ctx context.Context, routeNumbers, stationIDs []string, mode string, limit int) ([]*domain.Route, error)
	FindPaths(ctx context.Context, q service.PathQuery) ([]*domain.Path, error)
	ModelStats(ctx context.Context, agentType string) (graph.Stats, error)
}

type api struct {
	svc     routesService
	updates updater
	// snapshots is nil when the snapshot backend cannot list.
	snapshots snapshot.Lister
	log       *slog.Logger
}

func newRouter(cfg config.HTTPConfig, a *api, reg *metrics.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mid.RequestID,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("routes-api"),
		mid.Metrics(reg),
		mid.Compress(cfg.CompressMinSize, gzipLevel),
	)

	r.Get("/api/health", handleHealth)
	r.Get("/api/stations", a.handleFindStations)
	r.Get("/api/stations/{id}", a.handleGetStation)
	r.Get("/api/routes", a.handleFindRoutes)
	r.Get("/api/routes/{id}", a.handleGetRoute)
	r.Get("/api/paths", a.handleFindPaths)
	r.Post("/api/models/{agent}/update", a.handleUpdateModel)
	r.Get("/api/models/{agent}/stats", a.handleModelStats)
	r.Get("/api/models/{agent}/snapshots", a.handleListSnapshots)
	r.Method(http.MethodGet, "/metrics", reg.Handler())
	return r
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleGetStation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := a.svc.GetStation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "station not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, newStationView(st))
}

// handleFindStations serves GET /api/stations?name=..&lang=..&mode=..&limit=..
// The i-th lang applies to the i-th name; missing langs repeat the last
// one given.
func (a *api) handleFindStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	names := q["name"]
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	langs := q["lang"]
	search := make([]service.StationName, 0, len(names))
	for i, name := range names {
		lang := defaultLanguage
		switch {
		case i < len(langs):
			lang = langs[i]
		case len(langs) > 0:
			lang = langs[len(langs)-1]
		}
		search = append(search, service.StationName{Name: name, Language: lang})
	}

	stations, err := a.svc.FindStations(r.Context(), search, modeParam(q.Get("mode")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]stationView, 0, len(stations))
	for _, st := range stations {
		views = append(views, newStationView(st))
	}
	writeJSON(w, http.StatusOK, listResponse[stationView]{Items: views, Count: len(views)})
}

func (a *api) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	route, err := a.svc.GetRoute(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if route == nil {
		writeError(w, http.StatusNotFound, "route not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, newRouteView(route))
}

// handleFindRoutes serves GET /api/routes?number=..&station=..&mode=..&limit=..
// Route numbers win over station ids when both are given.
func (a *api) handleFindRoutes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	numbers := q["number"]
	stations := splitIDs(q["station"])
	if len(numbers) == 0 && len(stations) == 0 {
		writeError(w, http.StatusBadRequest, "number or station is required")
		return
	}
	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	routes, err := a.svc.FindRoutes(r.Context(), numbers, stations, modeParam(q.Get("mode")), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]routeView, 0, len(routes))
	for _, route := range routes {
		views = append(views, newRouteView(route))
	}
	writeJSON(w, http.StatusOK, listResponse[routeView]{Items: views, Count: len(views)})
}

// handleFindPaths serves GET /api/paths. Each waypoint parameter is a comma
// separated group of station domain ids; the first group is the departure
// and the last the arrival.
func (a *api) handleFindPaths(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var groups [][]string
	for _, wp := range q["waypoint"] {
		groups = append(groups, splitIDs([]string{wp}))
	}
	if len(groups) < 2 {
		writeError(w, http.StatusBadRequest, "at least two waypoints are required")
		return
	}
	query := service.PathQuery{Waypoints: groups, Mode: strings.ToUpper(q.Get("mode"))}
	var ok bool
	if query.Transfers, ok = intParam(w, q.Get("transfers"), "transfers"); !ok {
		return
	}
	if query.MaxTransitions, ok = intParam(w, q.Get("max_transitions"), "max_transitions"); !ok {
		return
	}
	if query.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}

	paths, err := a.svc.FindPaths(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]pathView, 0, len(paths))
	for _, p := range paths {
		views = append(views, newPathView(p))
	}
	writeJSON(w, http.StatusOK, listResponse[pathView]{Items: views, Count: len(views)})
}

// handleUpdateModel serves POST /api/models/{agent}/update?rebuild=true and
// waits for the update to finish.
func (a *api) handleUpdateModel(w http.ResponseWriter, r *http.Request) {
	agent := chi.URLParam(r, "agent")
	rebuild := false
	if v := r.URL.Query().Get("rebuild"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "rebuild must be a boolean")
			return
		}
		rebuild = b
	}

	req := service.UpdateRequest{JobID: uuid.NewString(), AgentType: agent, Rebuild: rebuild}
	reply, err := a.updates.Update(r.Context(), req)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		writeError(w, http.StatusServiceUnavailable, "model updaters unavailable")
		return
	}
	if err != nil {
		a.log.Error("model update dispatch failed", "job_id", req.JobID, "agent_type", agent, "err", err)
		writeError(w, http.StatusBadGateway, "model update dispatch failed")
		return
	}
	status := http.StatusOK
	if reply.Status != service.StatusDone {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, reply)
}

func (a *api) handleModelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.ModelStats(r.Context(), chi.URLParam(r, "agent"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if a.snapshots == nil {
		writeError(w, http.StatusNotImplemented, "snapshot listing not supported by this backend")
		return
	}
	infos, err := a.snapshots.List(r.Context(), chi.URLParam(r, "agent"))
	if errors.Is(err, snapshot.ErrInvalidKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.log.Error("list snapshots failed", "agent_type", chi.URLParam(r, "agent"), "err", err)
		writeError(w, http.StatusInternalServerError, "list snapshots failed")
		return
	}
	if infos == nil {
		infos = []snapshot.Info{}
	}
	writeJSON(w, http.StatusOK, listResponse[snapshot.Info]{Items: infos, Count: len(infos)})
}

// --- Helpers ---

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// intParam parses an optional integer query parameter. On a malformed value
// it writes a 400 and reports false.
func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func modeParam(v string) string {
	if v == "" {
		return defaultSearchMode
	}
	return strings.ToUpper(v)
}

// splitIDs flattens comma separated id lists, dropping blanks.
func splitIDs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
