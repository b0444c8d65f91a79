package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/example/ambulance-tracking/internal/config"
	"github.com/example/ambulance-tracking/internal/dispatch"
	"github.com/example/ambulance-tracking/internal/geo"
	"github.com/example/ambulance-tracking/internal/location"
	"github.com/example/ambulance-tracking/internal/models"
	"github.com/example/ambulance-tracking/internal/presentation"
	"github.com/example/ambulance-tracking/internal/tracking"
)

var (
	errSessionNotFound = errors.New("session not found")
	errBadRequest      = errors.New("malformed request body")
	errInvalidLocation = errors.New("location out of range")
	errRateLimited     = errors.New("too many dispatch requests")
	errNoPosition      = errors.New("no position supplied")
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Geo   geo.Index
	Hooks []dispatch.Hook
	Clock dispatch.Clock
	// ExternalGeoFeed means another process (the event consumer) owns writes
	// to Geo; the server only reads from it.
	ExternalGeoFeed bool
}

type liveSession struct {
	screen  *presentation.Screen
	surface *presentation.WSSurface
	limiter *rate.Limiter
}

type Server struct {
	cfg    config.ServerConfig
	geo    geo.Index
	hooks  []dispatch.Hook
	clock  dispatch.Clock
	logger *slog.Logger
	mux    *mux.Router

	mu       sync.RWMutex
	sessions map[string]*liveSession
}

// NewServer wires the tracking API. Unless ExternalGeoFeed is set the vehicle
// index is fed from session events so nearby lookups see every ambulance en
// route.
func NewServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Geo == nil {
		deps.Geo = geo.NewIndex()
	}
	if deps.Clock == nil {
		deps.Clock = dispatch.RealClock
	}
	var hooks []dispatch.Hook
	if !deps.ExternalGeoFeed {
		hooks = append(hooks, tracking.GeoSink{Index: deps.Geo})
	}
	hooks = append(hooks, deps.Hooks...)
	s := &Server{
		cfg:      cfg,
		geo:      deps.Geo,
		hooks:    hooks,
		clock:    deps.Clock,
		logger:   logger,
		mux:      mux.NewRouter(),
		sessions: make(map[string]*liveSession),
	}
	s.routes()
	s.registerMiddleware()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/emergency-type", s.handleSelectType).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/vehicles/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/emergency-types", s.handleEmergencyTypes).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/sessions/{id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Close unmounts every live session. Sessions close concurrently so the
// total wait is bounded by a single hook drain timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	live := s.sessions
	s.sessions = make(map[string]*liveSession)
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ls := range live {
		wg.Add(1)
		go func(ls *liveSession) {
			defer wg.Done()
			if err := ls.close(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(ls)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (ls *liveSession) close() error {
	err := ls.screen.Close()
	_ = ls.surface.Close()
	return err
}

func (s *Server) session(r *http.Request) (*liveSession, error) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	return ls, nil
}

type createSessionRequest struct {
	UserID     string           `json:"user_id"`
	Location   *models.GeoPoint `json:"location"`
	Permission string           `json:"permission"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	Snapshot  models.Snapshot    `json:"snapshot"`
	Frame     presentation.Frame `json:"frame"`
}

func providerFor(req createSessionRequest) (location.Provider, error) {
	switch {
	case req.Permission == string(location.Denied):
		return location.DeniedProvider{}, nil
	case req.Location == nil:
		return location.Unavailable{Err: errNoPosition}, nil
	case req.Location.Latitude < -90 || req.Location.Latitude > 90 ||
		req.Location.Longitude < -180 || req.Location.Longitude > 180:
		return nil, errInvalidLocation
	default:
		return location.Static{Point: *req.Location}, nil
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	provider, err := providerFor(req)
	if err != nil {
		writeError(w, err)
		return
	}

	surface := presentation.NewWSSurface()
	screen, err := presentation.Mount(r.Context(), presentation.MountConfig{
		Location: provider,
		Surface:  surface,
		Dispatch: dispatch.Options{
			SessionID:         uuid.NewString(),
			UserID:            req.UserID,
			Clock:             s.clock,
			Logger:            s.logger,
			MovementPeriod:    s.cfg.MovementPeriod,
			ETAPeriod:         s.cfg.ETAPeriod,
			InitialETAMinutes: s.cfg.InitialETAMinutes,
			Unit:              s.cfg.Unit,
			Hooks:             s.hooks,
			HookDrainTimeout:  s.cfg.HookDrainTimeout,
		},
		PulsePhase:    s.cfg.PulsePhase,
		EmergencyLine: s.cfg.EmergencyLine,
		Logger:        s.logger,
	})
	if err != nil {
		_ = surface.Close()
		s.logger.Info("session mount failed", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	ls := &liveSession{
		screen:  screen,
		surface: surface,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.APIRateLimit), s.cfg.APIRateBurst),
	}
	s.mu.Lock()
	s.sessions[screen.SessionID()] = ls
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: screen.SessionID(),
		Snapshot:  screen.Snapshot(),
		Frame:     screen.Frame(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ls, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: ls.screen.SessionID(),
		Snapshot:  ls.screen.Snapshot(),
		Frame:     ls.screen.Frame(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	ls, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	if err := ls.close(); err != nil {
		s.logger.Warn("session close failed", "session_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectTypeRequest struct {
	EmergencyType string `json:"emergency_type"`
}

func (s *Server) handleSelectType(w http.ResponseWriter, r *http.Request) {
	ls, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req selectTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errBadRequest)
		return
	}
	t, err := models.ParseEmergencyType(req.EmergencyType)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ls.screen.Select(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls.screen.Snapshot())
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ls, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ls.limiter.Allow() {
		writeError(w, errRateLimited)
		return
	}
	snap, err := ls.screen.Confirm(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ls, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ls.screen.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls.screen.Snapshot())
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, errInvalidLocation)
		return
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errBadRequest)
			return
		}
		limit = n
	}
	vehicles := s.geo.Nearby(lat, lon, limit)
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

type emergencyTypeView struct {
	Value models.EmergencyType `json:"value"`
	Label string               `json:"label"`
}

func (s *Server) handleEmergencyTypes(w http.ResponseWriter, r *http.Request) {
	out := make([]emergencyTypeView, 0, len(models.EmergencyTypes))
	for _, t := range models.EmergencyTypes {
		out = append(out, emergencyTypeView{Value: t, Label: t.Label()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"emergency_types": out})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ls, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := ls.surface.Add(conn)
	// The stream is one-way; reads only detect the client going away.
	go func() {
		defer ls.surface.Remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrMissingEmergencyType):
		return http.StatusUnprocessableEntity, "missing_emergency_type"
	case errors.Is(err, models.ErrInvalidEmergencyType):
		return http.StatusUnprocessableEntity, "invalid_emergency_type"
	case errors.Is(err, models.ErrMissingUserLocation):
		return http.StatusUnprocessableEntity, "missing_user_location"
	case errors.Is(err, errInvalidLocation):
		return http.StatusUnprocessableEntity, "invalid_location"
	case errors.Is(err, models.ErrLocationPermissionDenied):
		return http.StatusPreconditionFailed, "location_permission_denied"
	case errors.Is(err, models.ErrLocationUnavailable):
		return http.StatusPreconditionFailed, "location_unavailable"
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, dispatch.ErrClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
