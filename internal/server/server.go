// Package server exposes the creator over HTTP: a JSON API, a browser page
// with the submission form and status display, metrics and health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nftcreator/internal/config"
	"nftcreator/internal/creator"
	"nftcreator/internal/hmacauth"
	"nftcreator/internal/idempotency"
	"nftcreator/internal/inference"
	"nftcreator/internal/mint"
	"nftcreator/internal/storage"
)

const (
	idempotencyHeader = "X-Idempotency-Key"
	requestIDHeader   = "X-Request-Id"
	maxDraftBody      = 64 << 10
)

// Checker reports whether stored content is retrievable yet.
type Checker interface {
	Check(ctx context.Context, id string) (storage.Availability, error)
}

// Pinger is anything with a cheap liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Creator *creator.Creator
	Checker Checker
	Store   idempotency.Store
	Metrics *Metrics
	Journal *Journal
	// RPC is pinged by the health endpoint when set.
	RPC    Pinger
	Logger *zap.Logger
}

type Server struct {
	cfg         *config.AppConfig
	creator     *creator.Creator
	checker     Checker
	store       idempotency.Store
	hmac        *hmacauth.Verifier
	metrics     *Metrics
	journal     *Journal
	logger      *zap.Logger
	router      chi.Router
	httpServer  *http.Server
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	journal := deps.Journal
	if journal == nil {
		journal = NewJournal(cfg.Service.FailedDir, metrics, logger)
	}
	store := deps.Store
	if store == nil {
		store = idempotency.NewMemoryStore()
	}

	s := &Server{
		cfg:     cfg,
		creator: deps.Creator,
		checker: deps.Checker,
		store:   store,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.APISecret,
			MaxSkew: cfg.Service.HMACClockSkew,
			Logger:  logger,
		},
		metrics: metrics,
		journal: journal,
		logger:  logger,
	}

	if checker, ok := store.(Pinger); ok {
		s.dbHealthFn = checker.Ping
	}
	if deps.RPC != nil {
		s.rpcHealthFn = deps.RPC.Ping
	}
	metrics.watchBusy(func() bool { return s.creator.State().Busy })

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	// An empty origin list means "any" to cors, so the middleware is only
	// installed when origins are configured.
	if len(s.cfg.Service.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Service.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{
				"Content-Type", idempotencyHeader, requestIDHeader,
				hmacauth.HeaderSignature, hmacauth.HeaderTimestamp,
			},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handlePage)
	// The page cannot sign requests, so the form is only served unsigned.
	if !s.hmac.Enabled() {
		r.With(
			s.sameOrigin,
			middleware.AllowContentType("application/x-www-form-urlencoded", "multipart/form-data"),
		).Post("/submit", s.handleFormSubmit)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(
			s.sameOrigin,
			middleware.AllowContentType("application/json"),
			s.hmac.Middleware,
		).Post("/submissions", s.handleSubmit)
		r.Get("/status", s.handleStatus)
		r.Get("/storage/{cid}", s.handleStorageCheck)
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type submissionResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       string `json:"status"`
	StatusURL    string `json:"statusUrl"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// handleSubmit accepts a draft and starts the pipeline. With ?wait=true it
// blocks until the submission finishes and answers with the final status.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	if key != "" {
		existing, err := s.store.Get(ctx, key)
		if err != nil {
			s.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		}
		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(existing.StatusCode)
			_, _ = w.Write(existing.Response)
			s.metrics.incRequest("cached")
			return
		}
	}

	draft, err := decodeDraft(w, r)
	if err != nil {
		s.metrics.incRequest("invalid")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Kind: "request", Message: err.Error()}})
		return
	}

	// The submission outlives the request; a dropped connection must not
	// abandon a mint halfway.
	run, err := s.creator.Start(context.WithoutCancel(ctx), draft)
	if err != nil {
		code := statusFor(err)
		s.metrics.incRequest(strconv.Itoa(code))
		writeJSON(w, code, errorFor(err))
		return
	}

	accepted, _ := json.Marshal(submissionResponse{
		SubmissionID: run.ID,
		Status:       "accepted",
		StatusURL:    "/api/v1/status",
	})
	// Recorded before anything else so a retry never starts a second mint.
	s.remember(context.WithoutCancel(ctx), key, run.ID, http.StatusAccepted, accepted)

	if r.URL.Query().Get("wait") != "true" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(accepted)
		s.metrics.incRequest("accepted")
		return
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
		// The client left; its retry replays the final answer once there is one.
		go s.settle(key, run)
		return
	}
	code, body := s.settle(key, run)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
	s.metrics.incRequest(strconv.Itoa(code))
}

// settle waits for run and replaces its accepted record with the final view.
func (s *Server) settle(key string, run *creator.Run) (int, []byte) {
	final, runErr := run.Result()
	code := http.StatusOK
	if runErr != nil {
		code = statusFor(runErr)
	}
	body, _ := json.Marshal(s.creator.ViewOf(final))
	s.remember(context.Background(), key, run.ID, code, body)
	return code, body
}

func (s *Server) remember(ctx context.Context, key, id string, code int, body []byte) {
	if key == "" {
		return
	}
	now := time.Now()
	record := idempotency.Record{
		SubmissionID: id,
		StatusCode:   code,
		Response:     body,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.Service.IdempotencyWindow),
	}
	if err := s.store.Save(ctx, key, record); err != nil {
		s.logger.Warn("idempotency save failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.creator.View())
}

type availabilityResponse struct {
	CID       string `json:"cid"`
	Status    string `json:"status"`
	Available bool   `json:"available"`
	Pending   bool   `json:"pending"`
}

func (s *Server) handleStorageCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errorBody{Kind: "storage", Message: "storage checks are not configured"}})
		return
	}

	id := chi.URLParam(r, "cid")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	avail, err := s.checker.Check(ctx, id)
	if err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, storage.ErrBadIdentifier):
			code = http.StatusBadRequest
		case errors.Is(err, storage.ErrNotFound):
			code = http.StatusNotFound
		}
		writeJSON(w, code, errorResponse{Error: errorBody{Kind: "storage", Message: err.Error()}})
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		CID:       avail.CID,
		Status:    string(avail.Status),
		Available: avail.Available(),
		Pending:   avail.Pending(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status            string `json:"status"`
		RPC               any    `json:"rpc"`
		Database          any    `json:"database"`
		Busy              bool   `json:"busy"`
		FailedSubmissions int    `json:"failed_submissions"`
	}{
		Status:            status,
		RPC:               rpcInfo,
		Database:          dbInfo,
		Busy:              s.creator.State().Busy,
		FailedSubmissions: s.journal.Depth(),
	}

	code := http.StatusOK
	if !overallHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// decodeDraft reads a draft from a JSON or form-encoded body.
func decodeDraft(w http.ResponseWriter, r *http.Request) (creator.Draft, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDraftBody)

	var d creator.Draft
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return d, errors.New("invalid form payload")
		}
		d.Name = r.PostFormValue("name")
		d.Description = r.PostFormValue("description")
	default:
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			return d, errors.New("invalid json payload")
		}
	}
	return d, nil
}

// statusFor maps a submission error onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, creator.ErrBusy) {
		return http.StatusConflict
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, inference.ErrTimeout) {
		return http.StatusGatewayTimeout
	}
	var e *creator.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case creator.KindValidation:
		return http.StatusBadRequest
	case creator.KindWallet:
		if errors.Is(err, mint.ErrInsufficientFunds) {
			return http.StatusPaymentRequired
		}
		return http.StatusForbidden
	case creator.KindContract:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func errorFor(err error) errorResponse {
	if errors.Is(err, creator.ErrBusy) {
		return errorResponse{Error: errorBody{Kind: "busy", Message: err.Error()}}
	}
	var e *creator.Error
	if errors.As(err, &e) {
		body := errorBody{Kind: e.Kind.String(), Message: e.Msg}
		if e.Kind != creator.KindValidation {
			body.Stage = e.Stage.String()
		}
		return errorResponse{Error: body}
	}
	return errorResponse{Error: errorBody{Kind: "internal", Message: "submission failed"}}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// sameOrigin refuses submissions a browser sent from another site. Requests
// without browser headers, such as curl or a signed client, pass through.
func (s *Server) sameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Sec-Fetch-Site") {
		case "cross-site", "same-site":
			if !s.originAllowed(r.Header.Get("Origin")) {
				s.refuseOrigin(w, r)
				return
			}
		}
		if origin := r.Header.Get("Origin"); origin != "" && !sameHost(origin, r.Host) && !s.originAllowed(origin) {
			s.refuseOrigin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" || origin == "null" {
		return false
	}
	for _, allowed := range s.cfg.Service.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) refuseOrigin(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("cross-site submission refused",
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("fetch_site", r.Header.Get("Sec-Fetch-Site")),
		zap.String("path", r.URL.Path),
	)
	s.metrics.incRequest("forbidden")
	writeJSON(w, http.StatusForbidden, errorResponse{Error: errorBody{Kind: "request", Message: "cross-site submissions are not allowed"}})
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", r.Header.Get(requestIDHeader)),
		)
	})
}
