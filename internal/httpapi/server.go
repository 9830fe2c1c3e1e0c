// Package httpapi exposes a Session over JSON HTTP endpoints so that a
// browser page can drive the sale through a relay wallet.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"solana-ico/internal/domain"
	"solana-ico/internal/ico"
	"solana-ico/internal/observability"
	"solana-ico/internal/storage"
)

const (
	defaultActionLimit = 100
	maxBodyBytes       = 1 << 16
)

// Server serves the relay API.
type Server struct {
	session   *ico.Session
	actions   storage.ActionStore
	snapshots storage.SnapshotStore
	logger    *zap.Logger
	started   time.Time
	extra     func() interface{}
}

// Option configures a Server.
type Option func(*Server)

// WithActionStore enables GET /api/actions.
func WithActionStore(store storage.ActionStore) Option {
	return func(s *Server) { s.actions = store }
}

// WithSnapshotStore enables GET /api/snapshots.
func WithSnapshotStore(store storage.SnapshotStore) Option {
	return func(s *Server) { s.snapshots = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStatus adds component status (such as the watcher's) to GET /status.
func WithStatus(fn func() interface{}) Option {
	return func(s *Server) { s.extra = fn }
}

// New creates a Server for session.
func New(session *ico.Session, opts ...Option) *Server {
	s := &Server{
		session: session,
		logger:  zap.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all routes, request metrics and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	s.route(mux, "GET /status", s.handleStatus)

	s.route(mux, "GET /api/state", s.handleState)
	s.route(mux, "POST /api/refresh", s.handleRefresh)
	s.route(mux, "POST /api/amount", s.handleAmount)
	s.route(mux, "POST /api/initialize", s.handleInitialize)
	s.route(mux, "POST /api/deposit", s.handleDeposit)
	s.route(mux, "POST /api/buy", s.handleBuy)
	s.route(mux, "GET /api/actions", s.handleActions)
	s.route(mux, "GET /api/snapshots", s.handleSnapshots)

	return otelhttp.NewHandler(mux, "relay")
}

// route registers h and counts its responses under pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		h(rec, r)
		observability.RecordHTTPRequest(pattern, rec.code)
		s.logger.Debug("request",
			zap.String("route", pattern),
			zap.Int("code", rec.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string      `json:"status"`
	Uptime      string      `json:"uptime"`
	StartedAt   time.Time   `json:"started_at"`
	Wallet      string      `json:"wallet,omitempty"`
	Busy        bool        `json:"busy"`
	LastRefresh int64       `json:"last_refresh,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Components  interface{} `json:"components,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.session.State()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).Truncate(time.Second).String(),
		StartedAt:   s.started,
		Wallet:      st.Wallet,
		Busy:        st.Loading,
		LastRefresh: st.RefreshedAt,
		LastError:   st.LastError,
	}
	if s.extra != nil {
		resp.Components = s.extra()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// AmountRequest carries the input amount as typed by the user.
type AmountRequest struct {
	Amount *string `json:"amount"`
}

func (s *Server) handleAmount(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAmount(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if req.Amount == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "amount is required"})
		return
	}
	s.session.SetAmount(*req.Amount)
	writeJSON(w, http.StatusOK, s.session.State())
}

// ActionResponse is returned by the action endpoints.
type ActionResponse struct {
	Signature      string    `json:"signature"`
	Slot           int64     `json:"slot"`
	Lamports       uint64    `json:"lamports,omitempty"`
	TokenAccountTx string    `json:"tokenAccountSignature,omitempty"`
	State          ico.State `json:"state"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context) (*ActionResponse, error) {
		receipt, err := s.session.InitializeSale(ctx)
		if err != nil {
			return nil, err
		}
		return &ActionResponse{Signature: receipt.Signature, Slot: receipt.Slot}, nil
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context) (*ActionResponse, error) {
		receipt, err := s.session.Deposit(ctx)
		if err != nil {
			return nil, err
		}
		return &ActionResponse{Signature: receipt.Signature, Slot: receipt.Slot}, nil
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context) (*ActionResponse, error) {
		p, err := s.session.Buy(ctx)
		if err != nil {
			return nil, err
		}
		resp := &ActionResponse{Signature: p.Signature, Slot: p.Slot, Lamports: p.Lamports}
		if p.TokenAccountCreation != nil {
			resp.TokenAccountTx = p.TokenAccountCreation.Signature
		}
		return resp, nil
	})
}

// runAction applies an optional amount from the body, then runs fn.
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, fn func(context.Context) (*ActionResponse, error)) {
	req, err := decodeAmount(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if req.Amount != nil {
		s.session.SetAmount(*req.Amount)
	}

	resp, err := fn(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp.State = s.session.State()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "not_configured", Message: "action history is not configured"})
		return
	}
	q := r.URL.Query()

	wallet := q.Get("wallet")
	if wallet == "" {
		wallet = s.session.State().Wallet
	}
	if wallet == "" {
		s.writeError(w, ico.ErrWalletNotConnected)
		return
	}

	limit := defaultActionLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	actions, err := s.actions.ListByWallet(r.Context(), wallet, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if actions == nil {
		actions = []*domain.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "not_configured", Message: "snapshot history is not configured"})
		return
	}
	q := r.URL.Query()

	sale := q.Get("sale")
	if sale == "" {
		if st := s.session.State(); st.Sale != nil {
			sale = st.Sale.Address
		}
	}
	if sale == "" {
		s.writeError(w, ico.ErrSaleNotInitialized)
		return
	}

	end := time.Now().UnixMilli()
	start := end - 24*time.Hour.Milliseconds()
	var err error
	if v := q.Get("start"); v != "" {
		if start, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "start must be Unix milliseconds"})
			return
		}
	}
	if v := q.Get("end"); v != "" {
		if end, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "end must be Unix milliseconds"})
			return
		}
	}

	snaps, err := s.snapshots.GetByTimeRange(r.Context(), sale, start, end)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*domain.SaleSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// decodeAmount reads an optional {"amount": "..."} body.
func decodeAmount(w http.ResponseWriter, r *http.Request) (AmountRequest, error) {
	var req AmountRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, errors.New("invalid JSON body")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
